package hash

import (
	"strings"
	"testing"
)

func TestHash(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		wantErr bool
	}{
		{
			name:    "valid access code",
			code:    "7731-KIOSK",
			wantErr: false,
		},
		{
			name:    "minimum length code",
			code:    "123456",
			wantErr: false,
		},
		{
			name:    "code too short",
			code:    "short",
			wantErr: true,
		},
		{
			name:    "empty code",
			code:    "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hashed, err := Hash(tt.code)

			if tt.wantErr {
				if err == nil {
					t.Errorf("Hash() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("Hash() unexpected error = %v", err)
				return
			}

			if hashed == "" {
				t.Error("Hash() returned empty hash")
			}

			if hashed == tt.code {
				t.Error("Hash() returned unhashed code")
			}

			if !strings.HasPrefix(hashed, "$2a$12$") {
				t.Errorf("Hash() invalid bcrypt format, got = %s", hashed[:10])
			}
		})
	}
}

func TestHashDifferentOutputs(t *testing.T) {
	code := "SameCode123!"

	hash1, err := Hash(code)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	hash2, err := Hash(code)
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}

	if hash1 == hash2 {
		t.Error("Hash() should generate different hashes for same code (salt)")
	}
}

func TestCompare(t *testing.T) {
	code := "MySecureCode123!"
	hashed, err := Hash(code)
	if err != nil {
		t.Fatalf("Failed to generate hash: %v", err)
	}

	tests := []struct {
		name       string
		hashedCode string
		code       string
		wantErr    bool
	}{
		{
			name:       "correct code",
			hashedCode: hashed,
			code:       code,
			wantErr:    false,
		},
		{
			name:       "incorrect code",
			hashedCode: hashed,
			code:       "WrongCode",
			wantErr:    true,
		},
		{
			name:       "empty code",
			hashedCode: hashed,
			code:       "",
			wantErr:    true,
		},
		{
			name:       "case sensitive",
			hashedCode: hashed,
			code:       strings.ToUpper(code),
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Compare(tt.hashedCode, tt.code)

			if tt.wantErr {
				if err == nil {
					t.Error("Compare() expected error but got none")
				}
			} else {
				if err != nil {
					t.Errorf("Compare() unexpected error = %v", err)
				}
			}
		})
	}
}
