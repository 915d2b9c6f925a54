package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/samber/do"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/imagegen/image"
	"github.com/BaSui01/imagegen/image/modelconfig"
	"github.com/BaSui01/imagegen/image/service"
	"github.com/BaSui01/imagegen/internal/metrics"
	"github.com/BaSui01/imagegen/internal/server"
)

// =============================================================================
// 🖼️ generate 命令
// =============================================================================

func runGenerate(fs *flag.FlagSet) runFunc {
	modelKey := fs.String("model", "", "Model config key")
	prompt := fs.String("prompt", "", "Prompt")
	count := fs.Int("count", 1, "Requested image count (1-4)")
	input := fs.String("input", "", "Input image file (PNG or JPEG)")
	outDir := fs.String("out", "", "Directory to write generated images to")
	params := paramFlag{}
	fs.Var(params, "param", "Parameter override key=value (repeatable)")

	return func(ctx context.Context, a *app, _ []string) error {
		req := &image.ImageRequest{
			Prompt:         *prompt,
			Count:          *count,
			ParamOverrides: params,
		}
		if *input != "" {
			img, err := readInputImage(*input)
			if err != nil {
				return err
			}
			req.InputImage = img
		}

		svc, err := do.Invoke[*service.Service](a.injector)
		if err != nil {
			return err
		}
		handlers := &service.Handlers{OnProgress: func(p service.Progress) {
			a.logger.Debug("generation progress",
				zap.String("stage", string(p.Stage)),
				zap.String("request_id", p.RequestID),
			)
		}}

		res, err := svc.Generate(ctx, req, *modelKey, handlers)
		if err != nil {
			return err
		}

		if *outDir != "" {
			paths, err := writeImages(*outDir, res)
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(os.Stderr, "wrote", p)
			}
			// 已落盘的图片不再输出 base64
			for i := range res.Images {
				res.Images[i].B64 = ""
			}
		}
		return printJSON(a, res)
	}
}

// paramFlag 解析 key=value；value 能按 JSON 解析时保留类型，否则视为字符串
type paramFlag map[string]any

func (p paramFlag) String() string {
	if len(p) == 0 {
		return ""
	}
	data, _ := json.Marshal(map[string]any(p))
	return string(data)
}

func (p paramFlag) Set(s string) error {
	key, raw, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return fmt.Errorf("param must be key=value, got %q", s)
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		v = raw
	}
	p[key] = v
	return nil
}

// readInputImage 读取文件并按内容探测 MIME
func readInputImage(path string) (*image.InputImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input image: %w", err)
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return &image.InputImage{
		B64:      base64.StdEncoding.EncodeToString(data),
		MimeType: mime,
	}, nil
}

// writeImages 把 base64 图片写入目录，返回文件路径；仅有 URL 的图片跳过
func writeImages(dir string, res *image.ImageResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	prefix := res.Metadata.RequestID
	if prefix == "" {
		prefix = time.Now().Format("20060102-150405")
	}

	var paths []string
	for i, img := range res.Images {
		if img.B64 == "" {
			continue
		}
		mimeType, payload := image.SplitDataURL(img.B64)
		if mimeType == "" {
			mimeType = img.MimeType
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return paths, fmt.Errorf("decode image %d: %w", i, err)
		}
		path := filepath.Join(dir, fmt.Sprintf("%s-%d%s", prefix, i+1, extensionFor(mimeType)))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// =============================================================================
// 🗂️ configs 命令
// =============================================================================

func runConfigs(args []string) error {
	if len(args) == 0 {
		return errors.New("configs requires a subcommand: list, add, export, import, enable, disable, delete, reset")
	}
	sub, rest := args[0], args[1:]
	var setup func(fs *flag.FlagSet) runFunc
	switch sub {
	case "list":
		setup = configsList
	case "add":
		setup = configsAdd
	case "export":
		setup = configsExport
	case "import":
		setup = configsImport
	case "enable", "disable", "delete":
		setup = configsToggle(sub)
	case "reset":
		setup = configsReset
	default:
		return fmt.Errorf("unknown configs subcommand: %s", sub)
	}
	return withApp(rest, "configs "+sub, setup)
}

func manager(a *app) (*modelconfig.Manager, error) {
	return do.Invoke[*modelconfig.Manager](a.injector)
}

func configsList(fs *flag.FlagSet) runFunc {
	enabledOnly := fs.Bool("enabled", false, "Only list enabled configs")
	return func(ctx context.Context, a *app, _ []string) error {
		m, err := manager(a)
		if err != nil {
			return err
		}
		var configs []*image.ModelConfig
		if *enabledOnly {
			configs, err = m.EnabledModels(ctx)
		} else {
			configs, err = m.ListModels(ctx)
		}
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPROVIDER\tMODEL\tENABLED\tNAME")
		for _, c := range configs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%s\n", c.ID, c.ProviderID, c.ModelID, c.Enabled, c.Name)
		}
		return tw.Flush()
	}
}

func configsAdd(fs *flag.FlagSet) runFunc {
	id := fs.String("id", "", "Config id (default: <provider>-<random>)")
	name := fs.String("name", "", "Display name (default: model id)")
	providerID := fs.String("provider", "", "Provider id or alias")
	modelID := fs.String("model", "", "Vendor model id")
	apiKey := fs.String("api-key", "", "API key")
	baseURL := fs.String("base-url", "", "Base URL override")
	enabled := fs.Bool("enable", false, "Enable the config")
	return func(ctx context.Context, a *app, _ []string) error {
		cfg := &image.ModelConfig{
			ID:               *id,
			Name:             *name,
			ProviderID:       *providerID,
			ModelID:          *modelID,
			Enabled:          *enabled,
			ConnectionConfig: map[string]any{},
			ParamOverrides:   map[string]any{},
		}
		if cfg.ID == "" {
			cfg.ID = fmt.Sprintf("%s-%s", strings.ToLower(strings.TrimSpace(*providerID)), uuid.NewString()[:8])
		}
		if cfg.Name == "" {
			cfg.Name = *modelID
		}
		if *apiKey != "" {
			cfg.ConnectionConfig["apiKey"] = *apiKey
		}
		if *baseURL != "" {
			cfg.ConnectionConfig["baseURL"] = *baseURL
		}

		m, err := manager(a)
		if err != nil {
			return err
		}
		if err := m.AddModel(ctx, cfg); err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "added %s\n", cfg.ID)
		return nil
	}
}

func configsExport(fs *flag.FlagSet) runFunc {
	format := fs.String("format", "json", "Output format: json or yaml")
	out := fs.String("out", "", "Output file (default stdout)")
	return func(ctx context.Context, a *app, _ []string) error {
		m, err := manager(a)
		if err != nil {
			return err
		}
		configs, err := m.ExportData(ctx)
		if err != nil {
			return err
		}
		data, err := encodeConfigs(configs, *format)
		if err != nil {
			return err
		}
		if *out == "" {
			_, err = a.stdout.Write(data)
			return err
		}
		return os.WriteFile(*out, data, 0o600)
	}
}

// encodeConfigs YAML 输出先经 JSON 转换，保证字段名与导入格式一致
func encodeConfigs(configs []*image.ModelConfig, format string) ([]byte, error) {
	data, err := json.MarshalIndent(configs, "", "  ")
	if err != nil {
		return nil, err
	}
	switch format {
	case "json":
		return append(data, '\n'), nil
	case "yaml", "yml":
		var items []map[string]any
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return yaml.Marshal(items)
	default:
		return nil, fmt.Errorf("unsupported format: %s (supported: json, yaml)", format)
	}
}

// decodeConfigItems 按扩展名解析 JSON 或 YAML 配置列表
func decodeConfigItems(path string, data []byte) ([]map[string]any, error) {
	var items []map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
	}
	return items, nil
}

func configsImport(_ *flag.FlagSet) runFunc {
	return func(ctx context.Context, a *app, args []string) error {
		if len(args) != 1 {
			return errors.New("usage: imagegen configs import <file>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		items, err := decodeConfigItems(args[0], data)
		if err != nil {
			return err
		}

		m, err := manager(a)
		if err != nil {
			return err
		}
		result, err := m.ImportItems(ctx, items)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.stdout, "imported %d, failed %d\n", len(result.Imported), len(result.Failed))
		for _, f := range result.Failed {
			fmt.Fprintf(a.stdout, "  %s\n", f.Error())
		}
		return nil
	}
}

func configsToggle(action string) func(fs *flag.FlagSet) runFunc {
	return func(_ *flag.FlagSet) runFunc {
		return func(ctx context.Context, a *app, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: imagegen configs %s <id>", action)
			}
			m, err := manager(a)
			if err != nil {
				return err
			}
			id := args[0]
			switch action {
			case "enable":
				err = m.EnableModel(ctx, id)
			case "disable":
				err = m.DisableModel(ctx, id)
			default:
				err = m.DeleteModel(ctx, id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%sd %s\n", strings.TrimSuffix(action, "e"), id)
			return nil
		}
	}
}

func configsReset(_ *flag.FlagSet) runFunc {
	return func(ctx context.Context, a *app, _ []string) error {
		m, err := manager(a)
		if err != nil {
			return err
		}
		if err := m.Reset(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, "model configs reset to defaults")
		return nil
	}
}

// =============================================================================
// 🏷️ providers / models 命令
// =============================================================================

func runProviders(_ *flag.FlagSet) runFunc {
	return func(_ context.Context, a *app, _ []string) error {
		reg := do.MustInvoke[*image.Registry](a.injector)

		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tAPI KEY\tDYNAMIC MODELS\tBASE URL")
		for _, p := range reg.Providers() {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%s\n", p.ID, p.Name, p.RequiresAPIKey, p.SupportsDynamicModels, p.DefaultBaseURL)
		}
		return tw.Flush()
	}
}

func runModels(fs *flag.FlagSet) runFunc {
	providerID := fs.String("provider", "", "Provider id or alias")
	configKey := fs.String("model-config", "", "Use credentials of this model config")
	return func(ctx context.Context, a *app, _ []string) error {
		reg := do.MustInvoke[*image.Registry](a.injector)

		var cfg *image.ModelConfig
		if *configKey != "" {
			m, err := manager(a)
			if err != nil {
				return err
			}
			if cfg, err = m.GetModel(ctx, *configKey); err != nil {
				return err
			}
		} else {
			id, ok := reg.Resolve(*providerID)
			if !ok {
				return fmt.Errorf("unsupported image provider: %q", *providerID)
			}
			creds := a.cfg.Providers.ByID(id)
			conn := map[string]any{"apiKey": creds.APIKey}
			if creds.BaseURL != "" {
				conn["baseURL"] = creds.BaseURL
			}
			cfg = &image.ModelConfig{ID: "cli", ProviderID: id, ConnectionConfig: conn}
		}

		models, err := reg.ListModels(ctx, cfg)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tT2I\tI2I\tMULTI")
		for _, m := range models {
			fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%t\n", m.ID, m.Name, m.Capabilities.Text2Image, m.Capabilities.Image2Image, m.Capabilities.MultiImage)
		}
		return tw.Flush()
	}
}

// =============================================================================
// 📊 serve-metrics 命令
// =============================================================================

func runServeMetrics(fs *flag.FlagSet) runFunc {
	addr := fs.String("addr", "", "Listen address (default from config)")
	return func(ctx context.Context, a *app, _ []string) error {
		cfg := server.DefaultConfig()
		cfg.Addr = a.cfg.Metrics.Addr
		if *addr != "" {
			cfg.Addr = *addr
		}
		// 确保指标已注册到默认注册表
		_ = do.MustInvoke[*metrics.Collector](a.injector)

		return server.NewManager(server.NewOpsHandler(nil), cfg, a.logger).Run(ctx)
	}
}

// =============================================================================
// 🔧 输出
// =============================================================================

func printJSON(a *app, v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
