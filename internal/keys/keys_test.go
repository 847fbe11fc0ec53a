package keys

import (
	"errors"
	"testing"
)

// anvil 默认助记词派生出的第一把测试私钥，地址是公开的固定值。
const (
	testKey     = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func TestResolveExplicitKey(t *testing.T) {
	cred, err := Resolve("0x"+testKey, "UNSET_KEY_ENV")
	if err != nil {
		t.Fatalf("解析私钥失败: %v", err)
	}
	if cred.Source != SourceParameter {
		t.Fatalf("unexpected source: %s", cred.Source)
	}
	if cred.Address != testAddress {
		t.Fatalf("派生地址错误: got %s want %s", cred.Address, testAddress)
	}
}

func TestResolveFromEnvironment(t *testing.T) {
	t.Setenv("TEST_SIGNING_KEY", testKey)
	cred, err := Resolve("", "TEST_SIGNING_KEY")
	if err != nil {
		t.Fatalf("解析私钥失败: %v", err)
	}
	if cred.Source != SourceEnvironment {
		t.Fatalf("unexpected source: %s", cred.Source)
	}
	if cred.Address != testAddress {
		t.Fatalf("派生地址错误: got %s", cred.Address)
	}
}

func TestResolveMissingCredential(t *testing.T) {
	if _, err := Resolve("", "DEFINITELY_UNSET_KEY_ENV"); !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
}

func TestResolveInvalidKey(t *testing.T) {
	if _, err := Resolve("not-a-hex-key", ""); err == nil {
		t.Fatal("非法私钥应当报错")
	}
}
