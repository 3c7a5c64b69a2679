package vectorstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"ask-pdf-go/internal/config"
	"ask-pdf-go/internal/model"
	"ask-pdf-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// esDocument 是写入索引的文档结构。text 单独映射为全文字段，便于在 Kibana 中排查。
type esDocument struct {
	RecordID string            `json:"record_id"`
	Text     string            `json:"text"`
	Vector   []float32         `json:"vector"`
	Metadata map[string]string `json:"metadata"`
}

// ElasticsearchBackend 使用 dense_vector 字段和 knn 查询实现向量检索。
type ElasticsearchBackend struct {
	client *elasticsearch.Client
	index  string
	metric string
}

// NewElasticsearchBackend 创建 Elasticsearch 客户端。Addresses 可用逗号分隔多个节点。
func NewElasticsearchBackend(esCfg config.ElasticsearchConfig, metric string) (*ElasticsearchBackend, error) {
	var addresses []string
	for _, addr := range strings.Split(esCfg.Addresses, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			addresses = append(addresses, addr)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addresses,
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: esCfg.InsecureSkipVerify},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: 创建 Elasticsearch 客户端失败: %v", model.ErrInvalidConfig, err)
	}
	if metric == "" {
		metric = "cosine"
	}
	return &ElasticsearchBackend{client: client, index: esCfg.IndexName, metric: metric}, nil
}

func (b *ElasticsearchBackend) Name() string {
	return "elasticsearch"
}

// EnsureIndex 检查索引是否存在，如果不存在则按给定维度和相似度创建它
func (b *ElasticsearchBackend) EnsureIndex(ctx context.Context, dims int) error {
	res, err := b.client.Indices.Exists([]string{b.index}, b.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", b.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", b.index, res.StatusCode)
		return fmt.Errorf("%w: 检查索引是否存在时收到意外的状态码: %d", model.ErrStoreUnavailable, res.StatusCode)
	}
	if dims <= 0 {
		return fmt.Errorf("%w: 创建索引需要正的向量维度, 实际为 %d", model.ErrInvalidConfig, dims)
	}

	mapping := map[string]interface{}{
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"record_id": map[string]interface{}{"type": "keyword"},
				"text":      map[string]interface{}{"type": "text"},
				"vector": map[string]interface{}{
					"type":       "dense_vector",
					"dims":       dims,
					"index":      true,
					"similarity": b.metric,
				},
				"metadata": map[string]interface{}{"type": "flattened"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return err
	}
	res, err = b.client.Indices.Create(
		b.index,
		b.client.Indices.Create.WithContext(ctx),
		b.client.Indices.Create.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", b.index, err)
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", b.index, res.String())
		return statusError(res)
	}

	log.Infof("索引 '%s' 创建成功, 维度 %d, 相似度 %s", b.index, dims, b.metric)
	return nil
}

func (b *ElasticsearchBackend) Metric() string {
	return b.metric
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// Upsert 通过一次 bulk 请求写入整批记录，相同 _id 的文档被覆盖。
func (b *ElasticsearchBackend) Upsert(ctx context.Context, records []model.IndexedRecord) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range records {
		action := map[string]interface{}{"index": map[string]interface{}{"_index": b.index, "_id": r.ID}}
		if err := enc.Encode(action); err != nil {
			return err
		}
		doc := esDocument{RecordID: r.ID, Text: r.Text(), Vector: r.Vector, Metadata: r.Metadata}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("%w: 记录 '%s' 无法序列化: %v", model.ErrInvalidRecord, r.ID, err)
		}
	}

	req := esapi.BulkRequest{
		Index:   b.index,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, b.client)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量写入 Elasticsearch 出错: %s", res.String())
		return statusError(res)
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return fmt.Errorf("%w: 解析 bulk 响应失败: %v", model.ErrStoreUnavailable, err)
	}
	if !br.Errors {
		return nil
	}
	// bulk 中的各条操作相互独立，失败条目之外的记录已经写入索引。
	written := 0
	var firstErr error
	for _, item := range br.Items {
		for _, result := range item {
			if result.Error == nil {
				if result.Status >= 200 && result.Status < 300 {
					written++
				}
				continue
			}
			if firstErr != nil {
				continue
			}
			reason := fmt.Sprintf("记录 '%s' 写入失败 (%d %s): %s", result.ID, result.Status, result.Error.Type, result.Error.Reason)
			if result.Status == http.StatusTooManyRequests || result.Status >= 500 {
				firstErr = fmt.Errorf("%w: %s", model.ErrStoreUnavailable, reason)
			} else {
				firstErr = fmt.Errorf("%w: %s", model.ErrInvalidRecord, reason)
			}
		}
	}
	if firstErr == nil {
		firstErr = fmt.Errorf("%w: bulk 响应报告错误但未给出明细", model.ErrStoreUnavailable)
	}
	return &PartialWriteError{Written: written, Err: firstErr}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			ID     string  `json:"_id"`
			Score  float64 `json:"_score"`
			Source struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Query 执行 knn 查询。得分为 Elasticsearch 换算后的相似度，越大越相似。
func (b *ElasticsearchBackend) Query(ctx context.Context, vector model.EmbeddingVector, k int, includeMetadata bool) ([]model.Match, error) {
	numCandidates := min(max(k*10, 100), 10000)
	body := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   vector,
			"k":              k,
			"num_candidates": max(numCandidates, k),
		},
		"size": k,
	}
	if includeMetadata {
		body["_source"] = []string{"metadata"}
	} else {
		body["_source"] = false
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}
	res, err := b.client.Search(
		b.client.Search.WithContext(ctx),
		b.client.Search.WithIndex(b.index),
		b.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("Elasticsearch knn 查询出错: %s", res.String())
		return nil, statusError(res)
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("%w: 解析查询响应失败: %v", model.ErrStoreUnavailable, err)
	}
	matches := make([]model.Match, 0, len(sr.Hits.Hits))
	for _, hit := range sr.Hits.Hits {
		m := model.Match{RecordID: hit.ID, Score: hit.Score}
		if includeMetadata {
			m.Metadata = hit.Source.Metadata
		}
		matches = append(matches, m)
	}
	return matches, nil
}

// Count 返回索引中的文档数。
func (b *ElasticsearchBackend) Count(ctx context.Context) (int, error) {
	res, err := b.client.Count(
		b.client.Count.WithContext(ctx),
		b.client.Count.WithIndex(b.index),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", model.ErrStoreUnavailable, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return 0, statusError(res)
	}
	var cr struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("%w: 解析 count 响应失败: %v", model.ErrStoreUnavailable, err)
	}
	return cr.Count, nil
}

func (b *ElasticsearchBackend) Close() error {
	return nil
}

// statusError 将错误响应映射到错误分类：400 视为请求内容非法，其余视为服务不可用。
func statusError(res *esapi.Response) error {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
	msg := fmt.Sprintf("Elasticsearch 返回 %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	if res.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: %s", model.ErrInvalidRecord, msg)
	}
	return fmt.Errorf("%w: %s", model.ErrStoreUnavailable, msg)
}
