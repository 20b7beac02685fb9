package digital

import (
	"errors"
	"sync"

	"github.com/sqids/sqids-go"
)

var ErrInvalidRef = errors.New("invalid link ref")

var (
	sq   *sqids.Sqids
	once sync.Once
)

func getSqids() *sqids.Sqids {
	once.Do(func() {
		var err error
		sq, err = sqids.New(sqids.Options{
			Alphabet:  "k3G7QAe51FCsiWrNOYBUwM6XzZvdLT4j9JhyHKg2cVbxfERq0mSoI8lDpunPat",
			MinLength: 6,
		})
		if err != nil {
			panic("sqids init failed: " + err.Error())
		}
	})
	return sq
}

// EncodeRef 把 link id 编码成管理端使用的引用，避免在后台 URL 里暴露 secret 或自增 id。
func EncodeRef(id int64) (string, error) {
	if id <= 0 {
		return "", ErrInvalidRef
	}
	return getSqids().Encode([]uint64{uint64(id)})
}

// DecodeRef 是 EncodeRef 的逆操作；非规范编码也视为无效。
func DecodeRef(ref string) (int64, error) {
	ids := getSqids().Decode(ref)
	if len(ids) != 1 || ids[0] == 0 {
		return 0, ErrInvalidRef
	}
	canonical, err := getSqids().Encode(ids)
	if err != nil || canonical != ref {
		return 0, ErrInvalidRef
	}
	return int64(ids[0]), nil
}
