// Package docstore 提供按集合组织的文档存储抽象。
// 集合路径使用斜杠分隔，例如 chats/{chat_id}/messages。
package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound 表示文档不存在。
var ErrNotFound = errors.New("docstore: document not found")

// Document 是读出的一份文档。
type Document struct {
	ID   string
	Data map[string]interface{}
}

// DataTo 将文档内容解码到 v 中，v 的字段通过 json tag 对应。
func (d Document) DataTo(v interface{}) error {
	raw, err := json.Marshal(d.Data)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", d.ID, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document %s: %w", d.ID, err)
	}
	return nil
}

// Filter 是 List 的等值过滤条件。
type Filter struct {
	Field string
	Value interface{}
}

// Where 构造一个等值过滤条件。
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Store 定义了文档存储的操作接口。没有事务。
type Store interface {
	// Get 读取文档，不存在时返回 ErrNotFound。
	Get(ctx context.Context, collection, id string) (*Document, error)
	// Set 整体覆盖写入文档。
	Set(ctx context.Context, collection, id string, data interface{}) error
	// Merge 合并顶层字段，文档不存在时创建。
	Merge(ctx context.Context, collection, id string, data interface{}) error
	// Update 更新已存在文档的指定字段，不存在时返回 ErrNotFound。
	Update(ctx context.Context, collection, id string, fields map[string]interface{}) error
	// Delete 删除文档，文档不存在时不报错。
	Delete(ctx context.Context, collection, id string) error
	// List 列出集合中满足全部过滤条件的文档，不保证顺序。
	List(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	Close() error
}

// ToMap 将结构体或 map 转换为文档字段。
// 数字统一为 int64 或 float64，时间按 RFC3339 字符串保存。
func ToMap(data interface{}) (map[string]interface{}, error) {
	if m, ok := data.(map[string]interface{}); ok && m == nil {
		return map[string]interface{}{}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode document data: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("document data must be an object: %w", err)
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return normalize(m).(map[string]interface{}), nil
}

func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case []interface{}:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	default:
		return v
	}
}

// mergeFields 把 src 的顶层字段覆盖到 dst 上。
func mergeFields(dst, src map[string]interface{}) map[string]interface{} {
	if dst == nil {
		dst = make(map[string]interface{}, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// matches 判断文档是否满足全部过滤条件。
func matches(data map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		got, ok := data[f.Field]
		if !ok {
			return false
		}
		want, err := ToMap(map[string]interface{}{"v": f.Value})
		if err != nil {
			return false
		}
		if fmt.Sprint(got) != fmt.Sprint(want["v"]) {
			return false
		}
	}
	return true
}

// decodeFields 解析后端保存的 JSON 文档。
func decodeFields(raw []byte) (map[string]interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]interface{}
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]interface{}{}
	}
	return normalize(m).(map[string]interface{}), nil
}
