// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package application

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// StorePg Postgres 实现：ai_applications / ai_field_options 表（CMS 写入，这里只读）。
// 表结构：
//   ai_applications(id text pk, name text, platform_type text, active bool,
//     cost bigint, api_config jsonb, form_schema jsonb, template jsonb,
//     created_at timestamptz, updated_at timestamptz)
//   ai_field_options(id text pk, label text, value text)
type StorePg struct {
	pool *pgxpool.Pool
}

// NewStorePg 创建基于 PostgreSQL 的应用仓储
func NewStorePg(ctx context.Context, dsn string) (*StorePg, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &StorePg{pool: pool}, nil
}

// Close 关闭连接池
func (s *StorePg) Close() {
	s.pool.Close()
}

func (s *StorePg) Get(ctx context.Context, id string) (*Application, error) {
	var a Application
	var platformType string
	var apiConfig, formSchema, template []byte
	var createdAt, updatedAt time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, platform_type, active, cost, api_config, form_schema, template, created_at, updated_at
		 FROM ai_applications WHERE id = $1`,
		id).Scan(&a.ID, &a.Name, &platformType, &a.Active, &a.Cost, &apiConfig, &formSchema, &template, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.PlatformType = PlatformType(platformType)
	// api_config 经 APIConfig.UnmarshalJSON 规整历史拼写
	if len(apiConfig) > 0 {
		if err := json.Unmarshal(apiConfig, &a.APIConfig); err != nil {
			return nil, err
		}
	}
	if len(formSchema) > 0 {
		if err := json.Unmarshal(formSchema, &a.FormSchema); err != nil {
			return nil, err
		}
	}
	a.Template = template
	a.CreatedAt = createdAt
	a.UpdatedAt = updatedAt
	return &a, nil
}

func (s *StorePg) GetOptions(ctx context.Context, ids []string) (map[string]FieldOption, error) {
	if len(ids) == 0 {
		return map[string]FieldOption{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, label, value FROM ai_field_options WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]FieldOption, len(ids))
	for rows.Next() {
		var opt FieldOption
		if err := rows.Scan(&opt.ID, &opt.Label, &opt.Value); err != nil {
			return nil, err
		}
		out[opt.ID] = opt
	}
	return out, rows.Err()
}
