package fileutil

import (
	"os"
	"testing"
)

func TestExist(t *testing.T) {
	if Exist("") {
		t.Fatal("empty name should not exist")
	}
	f, err := os.CreateTemp(t.TempDir(), "exist")
	if err != nil {
		t.Fatal(err)
	}
	f.Close()
	if !Exist(f.Name()) {
		t.Fatalf("%q should exist", f.Name())
	}
}
