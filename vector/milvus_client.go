package vector

import (
	"context"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
)

// DialConfig 是 Milvus 连接参数。
type DialConfig struct {
	Address  string `yaml:"address" json:"address"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`
}

// sdkClient 用 milvusclient 实现 MilvusClient。
type sdkClient struct {
	cli *milvusclient.Client
}

// Dial 建立 Milvus 连接。
func Dial(ctx context.Context, cfg DialConfig) (MilvusClient, error) {
	db := cfg.Database
	if db == "" {
		db = "default"
	}
	cli, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   db,
	})
	if err != nil {
		return nil, fmt.Errorf("create milvus client: %w", err)
	}
	return &sdkClient{cli: cli}, nil
}

func (c *sdkClient) Search(ctx context.Context, collection string, vector []float32, limit int, filter string, outputFields []string) ([]Row, error) {
	// 度量在建索引时确定，搜索时不再指定
	opt := milvusclient.NewSearchOption(collection, limit, []entity.Vector{entity.FloatVector(vector)}).
		WithOutputFields(outputFields...)
	if filter != "" {
		opt = opt.WithFilter(filter)
	}
	results, err := c.cli.Search(ctx, opt)
	if err != nil {
		return nil, err
	}
	var rows []Row
	for _, rs := range results {
		if rs.Err != nil {
			return nil, rs.Err
		}
		decoded, err := decodeResultSet(rs, outputFields)
		if err != nil {
			return nil, err
		}
		rows = append(rows, decoded...)
	}
	return rows, nil
}

func (c *sdkClient) Query(ctx context.Context, collection, filter string, outputFields []string, limit int) ([]Row, error) {
	opt := milvusclient.NewQueryOption(collection).
		WithFilter(filter).
		WithOutputFields(outputFields...).
		WithLimit(limit)
	rs, err := c.cli.Query(ctx, opt)
	if err != nil {
		return nil, err
	}
	return decodeResultSet(rs, outputFields)
}

func (c *sdkClient) Count(ctx context.Context, collection string) (int, error) {
	rs, err := c.cli.Query(ctx, milvusclient.NewQueryOption(collection).WithOutputFields("count(*)"))
	if err != nil {
		return 0, err
	}
	col := rs.GetColumn("count(*)")
	if col == nil {
		return 0, fmt.Errorf("milvus count: no count(*) column")
	}
	n, err := col.GetAsInt64(0)
	if err != nil {
		return 0, fmt.Errorf("milvus count: %w", err)
	}
	return int(n), nil
}

func (c *sdkClient) Close(ctx context.Context) error {
	return c.cli.Close(ctx)
}

// decodeResultSet 按列读取结果集；行数以第一个输出字段的列长度为准。
func decodeResultSet(rs milvusclient.ResultSet, outputFields []string) ([]Row, error) {
	if len(outputFields) == 0 {
		return nil, nil
	}
	first := rs.GetColumn(outputFields[0])
	if first == nil {
		return nil, nil
	}
	n := first.Len()
	rows := make([]Row, n)
	for i := range rows {
		rows[i].Fields = make(map[string]any, len(outputFields))
		if i < len(rs.Scores) {
			rows[i].Score = rs.Scores[i]
		}
	}
	for _, name := range outputFields {
		col := rs.GetColumn(name)
		if col == nil {
			continue
		}
		for i := 0; i < n && i < col.Len(); i++ {
			v, err := col.Get(i)
			if err != nil {
				return nil, fmt.Errorf("milvus column %s row %d: %w", name, i, err)
			}
			if fv, ok := v.(entity.FloatVector); ok {
				v = []float32(fv)
			}
			rows[i].Fields[name] = v
		}
	}
	return rows, nil
}
