package clientstore

import (
	"testing"
)

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{"default", Config{}, "*clientstore.MemoryStore", false},
		{"memory", Config{Backend: "memory"}, "*clientstore.MemoryStore", false},
		{"postgres", Config{Backend: "sql", Driver: "postgres", DSN: "postgres://localhost/jj"}, "*clientstore.SQLStore", false},
		{"mysql", Config{Backend: "sql", Driver: "mysql", DSN: "user:pass@tcp(localhost:3306)/jj"}, "*clientstore.SQLStore", false},
		{"sql without dsn", Config{Backend: "sql", Driver: "mysql"}, "", true},
		{"sql bad driver", Config{Backend: "sql", Driver: "oracle", DSN: "x"}, "", true},
		{"s3", Config{Backend: "s3", Bucket: "b", Region: "us-east-1"}, "*clientstore.S3Store", false},
		{"s3 without bucket", Config{Backend: "s3"}, "", true},
		{"unknown", Config{Backend: "redis"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(tt.cfg, nil)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Open err=%v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			defer store.Close()
			if got := typeName(store); got != tt.want {
				t.Fatalf("Open=%s, want %s", got, tt.want)
			}
		})
	}
}

func typeName(s Store) string {
	switch s.(type) {
	case *MemoryStore:
		return "*clientstore.MemoryStore"
	case *SQLStore:
		return "*clientstore.SQLStore"
	case *S3Store:
		return "*clientstore.S3Store"
	default:
		return "unknown"
	}
}
