package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"

	"github.com/rushteam/careerkit/core"
)

// CatalogRecord 是目录文件中的一行（JSON 数组元素或 JSON Lines）。
// 兼容历史数据中的 career_id 字段，统一在这里规范为 job_id。
type CatalogRecord struct {
	JobID         string    `json:"job_id"`
	CareerID      string    `json:"career_id,omitempty"`
	Title         string    `json:"title"`
	Embedding     []float64 `json:"embedding"`
	Tags          []string  `json:"tags"`
	TraitCentroid []float64 `json:"trait_centroid,omitempty"`
}

// ToCandidate 在数据入口处把记录转换为规范的 Candidate。
func (r CatalogRecord) ToCandidate() (*core.Candidate, error) {
	id := r.JobID
	if id == "" {
		id = r.CareerID
	}
	var centroid core.TraitVector
	if len(r.TraitCentroid) > 0 {
		centroid = core.TraitVector(r.TraitCentroid)
	}
	return core.NewCandidate(id, r.Title, core.Embedding(r.Embedding), r.Tags, centroid)
}

// ReadCatalog 读取目录记录，自动识别 JSON 数组与 JSON Lines。
func ReadCatalog(r io.Reader) ([]CatalogRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if first == '[' {
		var records []CatalogRecord
		if err := json.NewDecoder(br).Decode(&records); err != nil {
			return nil, fmt.Errorf("decode catalog: %w", err)
		}
		return records, nil
	}

	var records []CatalogRecord
	sc := bufio.NewScanner(br)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec CatalogRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("decode catalog line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan catalog: %w", err)
	}
	return records, nil
}

// LoadCatalogFile 从文件加载目录并构建内存索引。
func LoadCatalogFile(path string, dim int) (*MemoryCandidateStore, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()

	records, err := ReadCatalog(f)
	if err != nil {
		return nil, err
	}
	candidates := make([]*core.Candidate, 0, len(records))
	for i, rec := range records {
		c, err := rec.ToCandidate()
		if err != nil {
			return nil, fmt.Errorf("catalog record %d: %w", i, err)
		}
		candidates = append(candidates, c)
	}
	return NewMemoryCandidateStore(dim, candidates)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
