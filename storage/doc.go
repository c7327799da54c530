// 版权所有 2024 BrowserFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 storage 提供按路径读写字节的持久化存储，以及录制与运行记录仓库。

# 概述

Store 以斜杠分隔的相对路径为键，屏蔽具体后端差异。
RecordingRepository 与 RunRepository 在其上约定文件布局：

	recordings/<name>.waw.json
	runs/<name>_<runId>.json

# 后端

  - memory：进程内 map，开发与测试默认
  - file：本地目录，临时文件 + rename 原子写
  - redis：go-redis，键前缀 + 有序集合路径索引
  - sql：GORM，表 storage_objects，支持 postgres / mysql / sqlite

NewStore 按 StoreConfig 选择后端，Instrument 为任意 Store 记录
Prometheus 指标。路径不存在时统一返回 ErrNotFound。
*/
package storage
