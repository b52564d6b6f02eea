package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheck_Shorten(t *testing.T) {
	tests := []struct {
		name string
		in   Shorten
		want string
	}{
		{"ok", Shorten{URL: "https://go.dev"}, ""},
		{"ok with code", Shorten{URL: "https://go.dev", ShortCode: "go123"}, ""},
		{"empty", Shorten{}, "URL is required"},
		{"blank", Shorten{URL: "   "}, "URL is required"},
		{"malformed", Shorten{URL: "not a url"}, "URL must be a valid URL"},
		{"code too short", Shorten{URL: "https://go.dev", ShortCode: "ab"}, "Short code must be at least 3 characters long"},
		{"code too long", Shorten{URL: "https://go.dev", ShortCode: "abcdefghi"}, "Short code must be at most 8 characters long"},
		{"code symbols", Shorten{URL: "https://go.dev", ShortCode: "a-b-c"}, "Short code must contain only letters and numbers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := tt.in
			err := Check(&in)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestCheck_ShortenTrims(t *testing.T) {
	in := Shorten{URL: "  https://go.dev  ", ShortCode: " go "}
	require.NoError(t, Check(&in))
	assert.Equal(t, "https://go.dev", in.URL)
	assert.Equal(t, "go", in.ShortCode)
}

func TestCheck_Register(t *testing.T) {
	valid := Register{Password: "secret1", ConfirmPassword: "secret1", Username: "ada", Email: "ada@example.com", FullName: "Ada"}
	require.NoError(t, Check(&valid))

	tests := []struct {
		name   string
		modify func(*Register)
		want   string
	}{
		{"mismatch", func(r *Register) { r.ConfirmPassword = "other1" }, "Passwords do not match"},
		{"mismatch before length", func(r *Register) { r.Password = "abc"; r.ConfirmPassword = "abd"; r.Username = "a" }, "Passwords do not match"},
		{"short password", func(r *Register) { r.Password = "abc"; r.ConfirmPassword = "abc" }, "Password must be at least 6 characters long"},
		{"password before username", func(r *Register) { r.Password = "abc"; r.ConfirmPassword = "abc"; r.Username = "a" }, "Password must be at least 6 characters long"},
		{"short username", func(r *Register) { r.Username = "ab" }, "Username must be at least 3 characters long"},
		{"bad email", func(r *Register) { r.Email = "ada" }, "Email must be a valid email address"},
		{"no full name", func(r *Register) { r.FullName = "" }, "Full name is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.modify(&in)
			err := Check(&in)
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestCheck_Login(t *testing.T) {
	assert.NoError(t, Check(&Login{Email: "ada@example.com", Password: "x"}))

	err := Check(&Login{Password: "x"})
	require.Error(t, err)
	assert.Equal(t, "Email is required", err.Error())

	err = Check(&Login{Email: "ada@example.com"})
	require.Error(t, err)
	assert.Equal(t, "Password is required", err.Error())
}

func TestCheck_ListAndUpdate(t *testing.T) {
	assert.NoError(t, Check(&List{}))
	assert.NoError(t, Check(&Update{}))

	err := Check(&List{Limit: 500})
	require.Error(t, err)
	assert.Equal(t, "Limit must be at most 100", err.Error())

	err = Check(&List{SortDir: "sideways"})
	require.Error(t, err)
	assert.Equal(t, "Sort direction must be one of: asc, desc", err.Error())

	err = Check(&Update{URL: "nope"})
	require.Error(t, err)
	assert.Equal(t, "URL must be a valid URL", err.Error())
}

func TestError_AllFieldsKept(t *testing.T) {
	err := Check(&Login{})
	ve, ok := AsError(err)
	require.True(t, ok)
	require.Len(t, ve.Fields, 2)
	assert.Equal(t, "Email", ve.Fields[0].Field)
	assert.Equal(t, "required", ve.Fields[0].Tag)
	assert.Equal(t, "Password", ve.Fields[1].Field)
}
