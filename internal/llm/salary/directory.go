package salary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Record 是一名员工的薪资信息，也是 get_salary_info 工具返回给模型的内容。
type Record struct {
	Name     string `json:"name"`
	Salary   string `json:"salary,omitempty"`
	Currency string `json:"currency,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Directory 按员工姓名查询薪资。
type Directory interface {
	Lookup(ctx context.Context, name string) (Record, bool)
}

// StaticDirectory 是内存中的薪资表，姓名匹配忽略大小写与首尾空白。
type StaticDirectory struct {
	records map[string]Record
}

// NewStaticDirectory 创建薪资表，currency 为空的条目使用 USD。
func NewStaticDirectory(records []Record) *StaticDirectory {
	d := &StaticDirectory{records: make(map[string]Record, len(records))}
	for _, r := range records {
		if r.Currency == "" {
			r.Currency = "USD"
		}
		d.records[normalize(r.Name)] = r
	}
	return d
}

// SampleDirectory 返回演示用的薪资表。
func SampleDirectory() *StaticDirectory {
	return NewStaticDirectory([]Record{
		{Name: "Alice", Salary: "120000", Currency: "USD"},
		{Name: "Bob", Salary: "95000", Currency: "USD"},
		{Name: "Charlie", Salary: "105000", Currency: "USD"},
	})
}

// LoadDirectory 从 JSON 数组文件加载薪资表。
func LoadDirectory(path string) (*StaticDirectory, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("薪资表文件路径不能为空")
	}
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("读取薪资表失败: %w", err)
	}
	defer file.Close()

	var records []Record
	if err := json.NewDecoder(file).Decode(&records); err != nil {
		return nil, fmt.Errorf("解析薪资表失败: %w", err)
	}
	for i, r := range records {
		if strings.TrimSpace(r.Name) == "" || strings.TrimSpace(r.Salary) == "" {
			return nil, fmt.Errorf("薪资表第 %d 条缺少 name 或 salary", i+1)
		}
	}
	return NewStaticDirectory(records), nil
}

// Lookup 实现 Directory。
func (d *StaticDirectory) Lookup(_ context.Context, name string) (Record, bool) {
	r, ok := d.records[normalize(name)]
	return r, ok
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
