// secrets-init 把站点登录凭据写入加密 secretstore
// 凭据来源：命令行参数 > 环境变量；密钥只从环境变量或 -secret-key 读取
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/betbot/crasher/pkg/secretstore"
)

func main() {
	var (
		dbPath    = flag.String("secrets", getenv("CRASHER_SECRETS_PATH", "secrets"), "secretstore 路径")
		secretKey = flag.String("secret-key", getenv("CRASHER_SECRETS_KEY", ""), "加密密钥（32 字节 base64/hex）")
		siteURL   = flag.String("site-url", getenv("CRASHER_SITE_URL", ""), "站点地址")
		username  = flag.String("username", getenv("CRASHER_USERNAME", ""), "登录用户名")
		password  = flag.String("password", getenv("CRASHER_PASSWORD", ""), "登录密码")
	)
	flag.Parse()

	keyBytes, err := secretstore.ParseKey(*secretKey)
	if err != nil {
		fatal(err)
	}
	if keyBytes == nil {
		fatal(fmt.Errorf("需要加密密钥：设置 CRASHER_SECRETS_KEY 或传 -secret-key"))
	}

	creds := secretstore.SiteCredentials{
		SiteURL:  strings.TrimSpace(*siteURL),
		Username: strings.TrimSpace(*username),
		Password: *password,
	}
	if creds.SiteURL == "" || creds.Username == "" || creds.Password == "" {
		fatal(fmt.Errorf("site-url / username / password 均不能为空"))
	}

	ss, err := secretstore.Open(secretstore.OpenOptions{
		Path:          *dbPath,
		EncryptionKey: keyBytes,
	})
	if err != nil {
		fatal(err)
	}
	defer ss.Close()

	if err := ss.SetSiteCredentials(creds); err != nil {
		fatal(err)
	}
	fmt.Fprintf(os.Stderr, "凭据已写入 %s\n", *dbPath)
}

func getenv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
