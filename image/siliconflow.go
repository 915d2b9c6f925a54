package image

import (
	"context"
	"sort"
	"strings"

	"github.com/BaSui01/imagegen/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	SiliconFlowProviderID     = "siliconflow"
	siliconFlowDefaultBaseURL = "https://api.siliconflow.cn/v1"
	siliconFlowDefaultSize    = "1024x1024"
)

// siliconFlowSizes 请求尺寸 → 平台支持的 image_size；不在表内的统一回退 1024x1024
var siliconFlowSizes = map[string]string{
	"1024x1024": "1024x1024",
	"960x1280":  "960x1280",
	"768x1024":  "768x1024",
	"720x1440":  "720x1440",
	"720x1280":  "720x1280",
	"1328x1328": "1328x1328",
	"1664x928":  "1664x928",
	"928x1664":  "928x1664",
	"1472x1140": "1472x1140",
	"1140x1472": "1140x1472",
	"1584x1056": "1584x1056",
	"1056x1584": "1056x1584",
	"1:1":       "1024x1024",
	"3:4":       "768x1024",
	"1:2":       "720x1440",
	"9:16":      "720x1280",
	"16:9":      "1664x928",
	"4:3":       "1472x1140",
	"3:2":       "1584x1056",
	"2:3":       "1056x1584",
}

// SiliconFlowImageSize 查表转换尺寸.
func SiliconFlowImageSize(size string) string {
	if v, ok := siliconFlowSizes[strings.ToLower(strings.TrimSpace(size))]; ok {
		return v
	}
	return siliconFlowDefaultSize
}

// SiliconFlowAdapter 基于 SiliconFlowClient 的适配器，支持动态模型发现.
type SiliconFlowAdapter struct {
	adapterBase
	opts Options
}

// NewSiliconFlowAdapter 创建 SiliconFlow 图像适配器.
func NewSiliconFlowAdapter(opts Options) *SiliconFlowAdapter {
	p := Provider{
		ID:                    SiliconFlowProviderID,
		Name:                  "SiliconFlow",
		RequiresAPIKey:        true,
		DefaultBaseURL:        siliconFlowDefaultBaseURL,
		SupportsDynamicModels: true,
		ConnectionSchema: ConnectionSchema{
			Required:   []string{"apiKey"},
			Optional:   []string{"baseURL"},
			FieldTypes: map[string]FieldType{"apiKey": FieldString, "baseURL": FieldString},
		},
	}
	return &SiliconFlowAdapter{adapterBase: newAdapterBase(p, siliconFlowModels(), opts), opts: opts}
}

func isKolors(modelID string) bool { return strings.Contains(strings.ToLower(modelID), "kolors") }

func isQwenImage(modelID string) bool {
	return strings.Contains(strings.ToLower(modelID), "qwen-image")
}

func siliconFlowParams(modelID string) []ParamDefinition {
	common := []ParamDefinition{
		{Name: "image_size", Type: "string", Default: siliconFlowDefaultSize},
		{Name: "num_inference_steps", Type: "integer", Default: 20, Min: ptrFloat(1), Max: ptrFloat(100)},
		{Name: "seed", Type: "integer", Min: ptrFloat(0), Max: ptrFloat(9999999999)},
	}
	switch {
	case isKolors(modelID):
		return append(common,
			ParamDefinition{Name: "guidance_scale", Type: "number", Default: 7.5, Min: ptrFloat(0), Max: ptrFloat(20)},
			ParamDefinition{Name: "negative_prompt", Type: "string"},
		)
	case isQwenImage(modelID):
		return append(common,
			ParamDefinition{Name: "cfg", Type: "number", Default: 4.0, Min: ptrFloat(0.1), Max: ptrFloat(20)},
		)
	}
	return common
}

func siliconFlowModels() []Model {
	return []Model{
		{
			ID:           "Kwai-Kolors/Kolors",
			Name:         "Kolors",
			ProviderID:   SiliconFlowProviderID,
			Capabilities: Capabilities{Text2Image: true, Image2Image: true},
			Parameters:   siliconFlowParams("Kwai-Kolors/Kolors"),
		},
		{
			ID:           "Qwen/Qwen-Image",
			Name:         "Qwen-Image",
			ProviderID:   SiliconFlowProviderID,
			Capabilities: Capabilities{Text2Image: true},
			Parameters:   siliconFlowParams("Qwen/Qwen-Image"),
		},
		{
			ID:           "Qwen/Qwen-Image-Edit",
			Name:         "Qwen-Image-Edit",
			ProviderID:   SiliconFlowProviderID,
			Capabilities: Capabilities{Image2Image: true},
			Parameters:   siliconFlowParams("Qwen/Qwen-Image-Edit"),
		},
	}
}

func (a *SiliconFlowAdapter) BuildDefaultModel(modelID string) Model {
	m := a.adapterBase.BuildDefaultModel(modelID)
	m.Parameters = siliconFlowParams(modelID)
	return m
}

func normalizeSiliconFlowBaseURL(base string) string { return ensureVersionSuffix(base, "/v1") }

func (a *SiliconFlowAdapter) restClient(cfg *ModelConfig) *SiliconFlowClient {
	return NewSiliconFlowClient(cfg.APIKey(), ResolveBaseURL(cfg, a.provider, normalizeSiliconFlowBaseURL), Options{
		HTTPClient: a.client,
		Logger:     a.opts.Logger,
	})
}

// Generate 生成图像，返回平台托管的图片 URL.
func (a *SiliconFlowAdapter) Generate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error) {
	return runGenerate(ctx, a, req, cfg, a.doGenerate)
}

func (a *SiliconFlowAdapter) doGenerate(ctx context.Context, req *ImageRequest, cfg *ModelConfig) (*ImageResult, error) {
	params := effectiveParams(ModelFor(a, cfg.ModelID), cfg, req)

	body := SiliconFlowGenerateRequest{
		Model:     cfg.ModelID,
		Prompt:    req.Prompt,
		BatchSize: 1,
		ImageSize: siliconFlowDefaultSize,
	}
	if v, ok := paramString(params, "image_size"); ok {
		body.ImageSize = SiliconFlowImageSize(v)
	}
	if v, ok := paramInt(params, "seed"); ok {
		body.Seed = &v
	}
	if v, ok := paramInt(params, "num_inference_steps"); ok {
		body.NumInferenceSteps = &v
	}
	switch {
	case isKolors(cfg.ModelID):
		if v, ok := paramFloat(params, "guidance_scale"); ok {
			body.GuidanceScale = &v
		}
		if v, ok := paramString(params, "negative_prompt"); ok {
			body.NegativePrompt = v
		}
	case isQwenImage(cfg.ModelID):
		if v, ok := paramFloat(params, "cfg"); ok {
			body.CFG = &v
		}
	}
	if req.InputImage != nil {
		body.Image = ToDataURL(req.InputImage)
	}

	resp, err := a.restClient(cfg).Generate(ctx, body)
	if err != nil {
		return nil, err
	}

	result := &ImageResult{}
	for _, img := range resp.Images {
		if u := strings.TrimSpace(img.URL); u != "" {
			result.Images = append(result.Images, GeneratedImage{URL: u})
		}
	}
	if len(result.Images) == 0 {
		return nil, types.NewError(types.ErrVendorAPI, "SiliconFlow returned no images").WithProvider(a.provider.ID)
	}
	result.setExtra("seed", resp.Seed)
	result.setExtra("inferenceSeconds", resp.Timings.Inference)
	return result, nil
}

// ListModels 并发查询文生图与图生图两个子类型，按模型 ID 合并能力。
// 任一查询失败时记录警告并返回静态目录.
func (a *SiliconFlowAdapter) ListModels(ctx context.Context, cfg *ModelConfig) ([]Model, error) {
	if cfg == nil || cfg.APIKey() == "" {
		return a.Models(), nil
	}
	client := a.restClient(cfg)

	var t2i, i2i []SiliconFlowModel
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		t2i, err = client.ListModels(gctx, siliconFlowSubTypeText2Image)
		return err
	})
	g.Go(func() error {
		var err error
		i2i, err = client.ListModels(gctx, siliconFlowSubTypeImage2Image)
		return err
	})
	if err := g.Wait(); err != nil {
		a.logger.Warn("dynamic model listing failed, using static catalog", zap.Error(err))
		return a.Models(), nil
	}

	byID := make(map[string]*Model)
	upsert := func(items []SiliconFlowModel, mark func(*Capabilities)) {
		for _, item := range items {
			if item.ID == "" {
				continue
			}
			m, ok := byID[item.ID]
			if !ok {
				built := a.catalogOrNew(item.ID)
				m = &built
				byID[item.ID] = m
			}
			mark(&m.Capabilities)
		}
	}
	upsert(t2i, func(c *Capabilities) { c.Text2Image = true })
	upsert(i2i, func(c *Capabilities) { c.Image2Image = true })

	if len(byID) == 0 {
		return a.Models(), nil
	}
	out := make([]Model, 0, len(byID))
	for _, m := range byID {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// catalogOrNew 复用目录中的名称与参数，能力清零后由列表结果重新标记
func (a *SiliconFlowAdapter) catalogOrNew(id string) Model {
	for _, m := range a.models {
		if m.ID == id {
			m.Capabilities = Capabilities{}
			return m
		}
	}
	return Model{
		ID:         id,
		Name:       id,
		ProviderID: SiliconFlowProviderID,
		Parameters: siliconFlowParams(id),
	}
}
