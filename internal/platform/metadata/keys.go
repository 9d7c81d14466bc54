package metadata

const (
	// SchemaVersionKey 记录统计表结构的版本，供启动时判断数据库是否由更新的版本写入
	SchemaVersionKey = "schema_version"
)
