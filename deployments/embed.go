// Package deployments 嵌入部署相关文件到二进制
//
// 包含：
//   - init.sql: PostgreSQL 全量建表脚本（幂等，可重复执行）
package deployments

import _ "embed"

// InitSQL PostgreSQL 全量初始化脚本
//
// postgres 驱动启动时执行，也可以手工导入（psql -f）或由
// docker-entrypoint-initdb.d 挂载执行。
//
//go:embed init.sql
var InitSQL string
