package errors

import "google.golang.org/grpc/codes"

// RAG 服务代码: 21 (业务服务范围 20-79)
// 错误码格式: AABBCCC
// - AA: 21 (ragserver)
// - BB: 类别代码
// - CCC: 序号

var (
	// 请求参数错误 (类别 01)
	ErrRAGInvalidRequest = Register(New(MakeCode(ServiceRAG, CategoryRequest, 1), 400, codes.InvalidArgument, "Invalid request parameters", "请求参数无效"))
	ErrRAGEmptyDocument  = Register(New(MakeCode(ServiceRAG, CategoryRequest, 2), 400, codes.FailedPrecondition, "Document contains no extractable text", "文档无可提取文本"))

	// 资源错误 (类别 04)
	ErrRAGDocumentNotFound = Register(New(MakeCode(ServiceRAG, CategoryResource, 1), 404, codes.NotFound, "Document not found", "文档不存在"))

	// 摄取/索引错误 (类别 07 - Internal)
	ErrRAGIngestFailed     = Register(New(MakeCode(ServiceRAG, CategoryInternal, 1), 500, codes.Internal, "Document ingestion failed", "文档摄取失败"))
	ErrRAGIndexWriteFailed = Register(New(MakeCode(ServiceRAG, CategoryInternal, 2), 500, codes.Internal, "Vector index write failed", "向量索引写入失败"))
	ErrRAGQueryFailed      = Register(New(MakeCode(ServiceRAG, CategoryInternal, 3), 500, codes.Internal, "Query failed", "查询失败"))
	ErrRAGStatsUnavailable = Register(New(MakeCode(ServiceRAG, CategoryInternal, 4), 500, codes.Internal, "Statistics unavailable", "统计信息不可用"))

	// 配置错误 (类别 12) - 嵌入维度与集合不一致时拒绝读写
	ErrRAGDimensionMismatch = Register(New(MakeCode(ServiceRAG, CategoryConfig, 1), 500, codes.FailedPrecondition, "Embedding dimension does not match the index", "嵌入维度与索引不匹配"))

	// 后端不可用 (类别 10 - Network)
	ErrRAGEmbeddingUnavailable  = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 1), 503, codes.Unavailable, "Embedding backend unavailable", "嵌入后端不可用"))
	ErrRAGGenerationUnavailable = Register(New(MakeCode(ServiceRAG, CategoryNetwork, 2), 503, codes.Unavailable, "Generation backend unavailable", "生成后端不可用"))

	// 超时 (类别 11)
	ErrRAGQueryTimeout = Register(New(MakeCode(ServiceRAG, CategoryTimeout, 1), 408, codes.DeadlineExceeded, "Query timeout", "查询超时"))

	// 数据库错误 (类别 08)
	ErrRAGDatabase = Register(New(MakeCode(ServiceRAG, CategoryDatabase, 1), 500, codes.Internal, "Database operation failed", "数据库操作失败"))
)
