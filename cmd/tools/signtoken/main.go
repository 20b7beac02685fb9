package main

import (
	"fmt"
	"log"
	"os"

	"digitals.local/internal/platform/auth"
	"digitals.local/internal/platform/config"
)

// 为履约服务或管理员签发调用 API 用的 JWT，密钥与签发方取自和 api 相同的配置（.env / 环境变量）。
func main() {
	if len(os.Args) != 3 {
		log.Fatal("usage: go run ./cmd/tools/signtoken <subject> <fulfillment|admin>")
	}

	cfg := config.Load()
	ts, err := auth.NewHS256Service(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		log.Fatal(err)
	}

	token, err := ts.Sign(os.Args[1], os.Args[2])
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(token)
}
