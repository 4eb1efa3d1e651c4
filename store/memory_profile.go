package store

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/rushteam/careerkit/core"
)

// MemoryProfileProvider 是内存实现的画像提供方，用于测试/开发/离线评估。
type MemoryProfileProvider struct {
	mu       sync.RWMutex
	profiles map[string]*core.UserProfile
}

func NewMemoryProfileProvider(profiles ...*core.UserProfile) *MemoryProfileProvider {
	p := &MemoryProfileProvider{profiles: make(map[string]*core.UserProfile, len(profiles))}
	for _, prof := range profiles {
		if prof != nil {
			p.profiles[prof.UserID] = prof
		}
	}
	return p
}

func (p *MemoryProfileProvider) Name() string { return "memory_profile" }

// Put 写入或替换一个画像。
func (p *MemoryProfileProvider) Put(prof *core.UserProfile) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[prof.UserID] = prof
}

func (p *MemoryProfileProvider) GetUserProfile(ctx context.Context, userID string) (*core.UserProfile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.profiles[userID]
	if !ok {
		return nil, core.NewProfileNotFound(userID)
	}
	return prof, nil
}

func (p *MemoryProfileProvider) Close() error { return nil }

// ProfileRecord 是画像文件中的一条记录。
type ProfileRecord struct {
	UserID    string    `json:"user_id"`
	Embedding []float64 `json:"embedding"`
	RIASEC    []float64 `json:"riasec,omitempty"`
	Big5      []float64 `json:"big5,omitempty"`
}

// ToProfile 转换为领域画像；空的特质数组视为缺失。
func (r ProfileRecord) ToProfile() *core.UserProfile {
	prof := &core.UserProfile{UserID: r.UserID, Embedding: core.Embedding(r.Embedding)}
	if len(r.RIASEC) > 0 {
		prof.RIASEC = core.TraitVector(r.RIASEC)
	}
	if len(r.Big5) > 0 {
		prof.Big5 = core.TraitVector(r.Big5)
	}
	return prof
}

// LoadProfilesFile 从 JSON 数组文件加载画像。
func LoadProfilesFile(path string) (*MemoryProfileProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var records []ProfileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	p := NewMemoryProfileProvider()
	for _, rec := range records {
		p.Put(rec.ToProfile())
	}
	return p, nil
}

var _ core.ProfileProvider = (*MemoryProfileProvider)(nil)
