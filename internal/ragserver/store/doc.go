// Package store 提供知识库服务的数据存储层。
//
// 该包定义了向量存储与文档元数据存储的接口抽象和具体实现，
// 支持文档块的写入、按文档回收、检索和统计功能。
package store
