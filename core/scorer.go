package core

import "context"

// Scorer 是冻结排序模型的领域接口。
//
// 约定：
//   - 输入为特征矩阵，每行一个候选；输出行序必须与输入一致
//   - 输出为 logit，由排序阶段做 sigmoid 变换
//   - 权重在进程生命周期内不可变，实现必须支持并发调用
//
// 实现：
//   - model.LogisticScorer / model.MLPScorer（本地推理）
//   - service.RemoteScorer（REST 模型服务）
type Scorer interface {
	Name() string

	// InputDim 返回期望的特征维度；0 表示不校验
	InputDim() int

	// ScoreBatch 一次前向计算整批特征
	ScoreBatch(ctx context.Context, features [][]float64) ([]float64, error)

	Close() error
}

// ScoreParts 是可分解打分器的输出：总 logit 以及内容匹配部分与特质部分的 logit。
type ScoreParts struct {
	Logit      float64
	CFLogit    float64
	TraitLogit float64
}

// DecomposingScorer 是可以把输出拆成来源分量的打分器。
// 排序阶段检测到该接口时会填充 cf_score 与 trait_score。
type DecomposingScorer interface {
	Scorer
	ScoreBatchParts(ctx context.Context, features [][]float64) ([]ScoreParts, error)
}
