package image

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/BaSui01/imagegen/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testConfig(providerID, modelID, baseURL string) *ModelConfig {
	conn := map[string]any{"apiKey": "sk-test"}
	if baseURL != "" {
		conn["baseURL"] = baseURL
	}
	return &ModelConfig{
		ID:               "cfg-" + providerID,
		Name:             providerID + " test",
		ProviderID:       providerID,
		ModelID:          modelID,
		Enabled:          true,
		ConnectionConfig: conn,
	}
}

func TestValidateRequest(t *testing.T) {
	cfg := testConfig("openai", "gpt-image-1", "")

	tests := []struct {
		name    string
		req     *ImageRequest
		cfg     *ModelConfig
		wantErr bool
	}{
		{name: "ok", req: &ImageRequest{Prompt: "a cat"}, cfg: cfg},
		{name: "nil request", req: nil, cfg: cfg, wantErr: true},
		{name: "blank prompt", req: &ImageRequest{Prompt: "   "}, cfg: cfg, wantErr: true},
		{name: "missing model id", req: &ImageRequest{Prompt: "a cat"}, cfg: &ModelConfig{ProviderID: "openai"}, wantErr: true},
		{name: "nil config", req: &ImageRequest{Prompt: "a cat"}, cfg: nil, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req, tt.cfg)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrValidation))
		})
	}
}

func TestValidateConfig_ProviderMismatch(t *testing.T) {
	p := NewOpenAIAdapter(Options{}).Provider()
	err := ValidateConfig(p, testConfig("gemini", "gemini-2.5-flash-image", ""))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrConfiguration))
}

func TestValidateConnection(t *testing.T) {
	schema := ConnectionSchema{
		Required:   []string{"apiKey"},
		Optional:   []string{"baseURL", "timeout"},
		FieldTypes: map[string]FieldType{"apiKey": FieldString, "baseURL": FieldString, "timeout": FieldNumber},
	}

	assert.Nil(t, ValidateConnection(schema, map[string]any{"apiKey": "k"}))
	assert.Nil(t, ValidateConnection(schema, map[string]any{"apiKey": "k", "timeout": 30.0}))

	err := ValidateConnection(schema, map[string]any{})
	require.NotNil(t, err)
	assert.Equal(t, types.ErrConfiguration, err.Code)
	assert.Contains(t, err.Message, `"apiKey"`)

	err = ValidateConnection(schema, map[string]any{"apiKey": "  "})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "missing required connection field")

	err = ValidateConnection(schema, map[string]any{"apiKey": "k", "timeout": "30"})
	require.NotNil(t, err)
	assert.Contains(t, err.Message, "must be a number")
}

func TestCheckCapability(t *testing.T) {
	t2iOnly := Model{ID: "dall-e-3", ProviderID: "openai", Capabilities: Capabilities{Text2Image: true}}
	withImage := &ImageRequest{Prompt: "x", InputImage: &InputImage{B64: "ZHVtbXk=", MimeType: "image/png"}}

	assert.NoError(t, CheckCapability(t2iOnly, &ImageRequest{Prompt: "x"}))

	err := CheckCapability(t2iOnly, withImage)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrCapability))

	assert.NoError(t, CheckCapability(Model{ID: "x", Capabilities: AllCapabilities()}, withImage))
}

func TestValidateInputImage_MIME(t *testing.T) {
	tests := []struct {
		mime    string
		wantErr bool
	}{
		{"image/png", false},
		{"image/jpeg", false},
		{"IMAGE/PNG", false},
		{"Image/JPEG", false},
		{"image/webp", true},
		{"image/gif", true},
		{"image/jpg", true},
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			err := ValidateInputImage(&InputImage{B64: "ZHVtbXk=", MimeType: tt.mime})
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, types.IsCode(err, types.ErrValidation))
				assert.Contains(t, err.Error(), "image/png, image/jpeg")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateInputImage_SizeGate(t *testing.T) {
	// 10485759 字节 → 13981012 个 base64 字符，无填充
	justUnder := strings.Repeat("A", 13981012)
	assert.Equal(t, MaxInputImageBytes-1, DecodedBase64Size(justUnder))
	assert.NoError(t, ValidateInputImage(&InputImage{B64: justUnder, MimeType: "image/png"}))

	// 10485761 字节 → 13981016 个字符，一个 '='
	over := strings.Repeat("A", 13981015) + "="
	assert.Equal(t, MaxInputImageBytes+1, DecodedBase64Size(over))
	err := ValidateInputImage(&InputImage{B64: over, MimeType: "image/jpeg"})
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrValidation))
	assert.Contains(t, err.Error(), "10MB")
}

func TestValidateInputImage_DataURLPrefix(t *testing.T) {
	assert.NoError(t, ValidateInputImage(&InputImage{B64: "data:image/png;base64,ZHVtbXk=", MimeType: "image/png"}))

	err := ValidateInputImage(&InputImage{B64: "data:image/png;base64,", MimeType: "image/png"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestDecodedBase64Size_MatchesEncoding(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		data := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(t, "data")
		encoded := base64.StdEncoding.EncodeToString(data)
		if got := DecodedBase64Size(encoded); got != len(data) {
			t.Fatalf("DecodedBase64Size(%d chars) = %d, want %d", len(encoded), got, len(data))
		}
	})
}

func TestSplitDataURL(t *testing.T) {
	mime, payload := SplitDataURL("data:image/jpeg;base64,QUJD")
	assert.Equal(t, "image/jpeg", mime)
	assert.Equal(t, "QUJD", payload)

	mime, payload = SplitDataURL("QUJD")
	assert.Empty(t, mime)
	assert.Equal(t, "QUJD", payload)

	assert.Equal(t, "data:image/png;base64,QUJD", ToDataURL(&InputImage{B64: "QUJD"}))
	assert.Equal(t, "data:image/jpeg;base64,QUJD", ToDataURL(&InputImage{B64: "QUJD", MimeType: "IMAGE/JPEG"}))
}

func TestEffectiveParams_Precedence(t *testing.T) {
	m := Model{DefaultParams: map[string]any{"size": "1024x1024", "quality": "auto"}}
	cfg := &ModelConfig{ParamOverrides: map[string]any{"size": "1536x1024"}}
	req := &ImageRequest{ParamOverrides: map[string]any{"quality": "high"}}

	got := effectiveParams(m, cfg, req)
	assert.Equal(t, "1536x1024", got["size"])
	assert.Equal(t, "high", got["quality"])
	// 源 map 不应被修改
	assert.Equal(t, "1024x1024", m.DefaultParams["size"])
}
