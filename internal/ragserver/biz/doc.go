// Package biz 提供知识库服务的业务逻辑层。
//
// 该包采用分层架构，将业务逻辑拆分为以下组件：
//   - Ingester: 负责文档导入（清洗、分块、嵌入、写入，失败时回收补偿）
//   - Retriever: 负责检索（向量搜索、维度校验、分数过滤）
//   - Generator: 负责生成（上下文预算、提示词构建、LLM 回答生成）
//   - QueryCache: 查询结果缓存
//   - Service: 组合以上组件，提供统一的服务接口
package biz
