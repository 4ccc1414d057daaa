package generation

import (
	"crypto/md5"
	"syscall"
)

type syscallStatT = syscall.Stat_t

func md5Sum(data []byte) [16]byte {
	return md5.Sum(data)
}
