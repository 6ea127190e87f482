package grpc

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

func TestAccountServiceDesc_MatchesProtoContract(t *testing.T) {
	path := filepath.Join("..", "..", "..", "proto", filepath.FromSlash(AccountServiceDesc.Metadata.(string)))
	src, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}

	if !regexp.MustCompile(`(?m)^package slothauth\.v1;$`).Match(src) {
		t.Fatal("proto package does not match ServiceName")
	}

	rpcs := regexp.MustCompile(`(?m)^\s*rpc (\w+)\(`).FindAllSubmatch(src, -1)
	declared := make(map[string]bool, len(rpcs))
	for _, m := range rpcs {
		declared[string(m[1])] = true
	}

	if len(declared) != len(AccountServiceDesc.Methods) {
		t.Fatalf("proto declares %d rpcs, descriptor has %d methods", len(declared), len(AccountServiceDesc.Methods))
	}
	for _, m := range AccountServiceDesc.Methods {
		if !declared[m.MethodName] {
			t.Errorf("method %s missing from %s", m.MethodName, path)
		}
	}
}
