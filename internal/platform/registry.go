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

package platform

import (
	"aigc-platform/internal/application"
	pkgerr "aigc-platform/pkg/errors"
)

// Registry 按平台类型分发适配器。
// 新增平台类型必须在这里显式接线，漏接会在首次分发时暴露为配置错误。
type Registry struct {
	services map[application.PlatformType]Service
}

// NewRegistry 注册一组适配器
func NewRegistry(services ...Service) *Registry {
	r := &Registry{services: make(map[application.PlatformType]Service, len(services))}
	for _, svc := range services {
		r.services[svc.PlatformType()] = svc
	}
	return r
}

// Resolve 取平台对应的适配器
func (r *Registry) Resolve(t application.PlatformType) (Service, error) {
	switch t {
	case application.PlatformComfyUI, application.PlatformOpenAI:
		if svc, ok := r.services[t]; ok {
			return svc, nil
		}
		return nil, pkgerr.NewConfiguration("platform", "no adapter registered for platform type "+string(t))
	default:
		return nil, pkgerr.NewConfiguration("platform", "unsupported platform type "+string(t))
	}
}
