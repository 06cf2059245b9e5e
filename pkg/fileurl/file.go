package fileurl

import (
	"os"
	"path/filepath"
)

// IsExist determines if a file or directory exists
// IsExist 判断文件或目录是否存在
func IsExist(dst string) bool {
	_, err := os.Stat(dst)
	if err != nil {
		return os.IsExist(err)
	}
	return true
}

// CreatePath creates the parent directory of dst
// CreatePath 创建 dst 的父目录
func CreatePath(dst string, perm os.FileMode) error {
	return os.MkdirAll(filepath.Dir(dst), perm)
}
