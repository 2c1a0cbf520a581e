package utils

import (
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GetUUID 生成调试会话的id
func GetUUID() string {
	u1, err := uuid.NewRandom()
	if err != nil {
		logrus.Errorf("[GetUUID] generate uuid fail, err = %v", err)
		return uuid.NewString()
	}
	return u1.String()
}
