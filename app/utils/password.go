package utils

import (
	"golang.org/x/crypto/bcrypt"
)

// hashCost 口令哈希强度，只有管理员初始化和登录走这条路径
const hashCost = 12

// HashPassword 使用 bcrypt 哈希口令
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), hashCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// VerifyPassword 验证口令是否匹配哈希值
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
