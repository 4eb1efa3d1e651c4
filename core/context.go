package core

import (
	"errors"
	"sync"
)

// PipelineContext 持有进程级单例：画像提供方、候选索引、打分器、反馈统计。
// 在进程启动时显式构造一次，注入检索/排序/选择各阶段，进程退出时显式 Close。
// 请求之间从不重建这些句柄。
type PipelineContext struct {
	Profiles ProfileProvider
	Store    CandidateStore
	Scorer   Scorer
	Outcomes OutcomeStore // 仅 Bandit 策略需要，可为 nil

	closeOnce sync.Once
	closeErr  error
}

// NewPipelineContext 校验必需的依赖后返回上下文。
func NewPipelineContext(profiles ProfileProvider, store CandidateStore, scorer Scorer, outcomes OutcomeStore) (*PipelineContext, error) {
	if profiles == nil {
		return nil, NewValidationError(ModulePipeline, "profile provider is required")
	}
	if store == nil {
		return nil, NewValidationError(ModulePipeline, "candidate store is required")
	}
	if scorer == nil {
		return nil, NewValidationError(ModulePipeline, "scorer is required")
	}
	return &PipelineContext{
		Profiles: profiles,
		Store:    store,
		Scorer:   scorer,
		Outcomes: outcomes,
	}, nil
}

// Close 依次释放所有资源，只执行一次；各资源的错误合并返回。
func (pc *PipelineContext) Close() error {
	pc.closeOnce.Do(func() {
		var errs []error
		if pc.Scorer != nil {
			errs = append(errs, pc.Scorer.Close())
		}
		if pc.Store != nil {
			errs = append(errs, pc.Store.Close())
		}
		if pc.Profiles != nil {
			errs = append(errs, pc.Profiles.Close())
		}
		if pc.Outcomes != nil {
			errs = append(errs, pc.Outcomes.Close())
		}
		pc.closeErr = errors.Join(errs...)
	})
	return pc.closeErr
}
