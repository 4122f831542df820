/*
Package mount 提供了 Linux 挂载点的描述、执行与挂载表解析。

主要功能：

1. Mount 结构体：
   - 定义挂载点的基本属性（源、目标、文件系统类型等）
   - Mount 执行挂载（含只读绑定挂载的二次 remount）
   - Unmount 执行惰性卸载（MNT_DETACH），目标仍被占用时也能摘除
   - 提供挂载点状态查询方法（只读、绑定挂载等）

2. 挂载表解析：
   - ParseTable 解析 /proc/<pid>/mounts 格式的挂载表
   - 还原路径中的八进制转义（如 \040 表示空格）

使用示例：

    table, _ := mount.ParseTable(f)
    for _, m := range table {
        if strings.Contains(m.Source, "magisk") {
            m.Unmount()
        }
    }
*/
package mount
