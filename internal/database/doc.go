// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 database 提供基于 GORM 的数据库连接与连接池管理，供 sql 存储后端使用。

Open 按 config.DatabaseConfig 的 Driver 选择方言（postgres / mysql /
sqlite，sqlite 使用纯 Go 驱动）。PoolManager 设置连接池参数，定时探活并把
连接数写入 Prometheus 指标。

PoolManager.Tx 实现 storage.TxRunner：sql 存储的每次写入都在事务里执行，
死锁、序列化失败、sqlite 锁冲突等瞬时错误按指数退避重放，其他错误直接返回。
*/
package database
