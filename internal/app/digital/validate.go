package digital

import "strings"

// ValidateSecret 校验 secret：必须恰好 30 位，且只包含 base62 字符。
func ValidateSecret(secret string) error {
	if secret == "" {
		return invalid("secret", "can't be blank")
	}
	if len(secret) != SecretLength {
		return invalid("secret", "must be 30 characters")
	}
	for i := 0; i < len(secret); i++ {
		if strings.IndexByte(secretAlphabet, secret[i]) < 0 {
			return invalid("secret", "contains invalid characters")
		}
	}
	return nil
}

// ValidateLink 检查 access link 在任意时刻都必须成立的不变量。
// digital 是否真实存在由 Store 负责校验。
func ValidateLink(link AccessLink) error {
	if err := ValidateSecret(link.Secret); err != nil {
		return err
	}
	if link.DigitalID <= 0 {
		return invalid("digital_id", "must exist")
	}
	if link.LineItemID <= 0 {
		return invalid("line_item_id", "must exist")
	}
	if link.AccessCounter < 0 {
		return invalid("access_counter", "must be >= 0")
	}
	return nil
}
