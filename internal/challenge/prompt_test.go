package challenge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"sessionkeeper-go/internal/page/pagetest"
	"sessionkeeper-go/internal/vision"
)

func TestParsePrompt(t *testing.T) {
	cases := []struct {
		text  string
		kind  PromptKind
		color string
		shape vision.Shape
		chars string
	}{
		{text: "请选出图中蓝色的图形", kind: PromptColor, color: "蓝色"},
		{text: "请选出图中 红色 的图形", kind: PromptColor, color: "红色"},
		{text: "点击图里绿色物体", kind: PromptColor, color: "绿色"},
		{text: "请选出图中的五角星", kind: PromptShape, shape: vision.ShapeStar},
		{text: "请选出图中的圆环。", kind: PromptShape, shape: vision.ShapeRing},
		{text: "请点击图中的梯形", kind: PromptShape, shape: vision.ShapeTrapezoid},
		{text: "请依次点击：安 全 验 证", kind: PromptCharacters, chars: "安全验证"},
		{text: "请依次点击“京东商城购物”", kind: PromptCharacters, chars: "京东商城"},
	}
	for _, tc := range cases {
		t.Run(tc.text, func(t *testing.T) {
			pr, err := ParsePrompt(tc.text)
			require.NoError(t, err)
			require.Equal(t, tc.kind, pr.Kind)
			require.Equal(t, tc.color, pr.Color)
			require.Equal(t, tc.shape, pr.Shape)
			require.Equal(t, tc.chars, string(pr.Chars))
		})
	}
}

func TestParsePromptRejects(t *testing.T) {
	_, err := ParsePrompt("")
	require.ErrorIs(t, err, ErrLowConfidence)

	_, err = ParsePrompt("请依次点击 安全")
	require.ErrorIs(t, err, ErrLowConfidence)

	_, err = ParsePrompt("请选出图中金色的图形")
	require.ErrorIs(t, err, vision.ErrUnsupported)

	_, err = ParsePrompt("请选出图中的月亮")
	require.ErrorIs(t, err, vision.ErrUnsupported)
}

func TestDOMPromptFallsBackToAlt(t *testing.T) {
	p := pagetest.New()
	p.Texts["#q"] = "  "
	p.Attrs["#q"] = map[string]string{"alt": "请选出图中的六边形"}
	txt, err := DOMPrompt{}.ReadPrompt(context.Background(), p, "#q")
	require.NoError(t, err)
	require.Equal(t, "请选出图中的六边形", txt)

	_, err = DOMPrompt{}.ReadPrompt(context.Background(), p, "#missing")
	require.ErrorIs(t, err, ErrLowConfidence)
}

func TestOCRPromptParsesJSONAndPlainText(t *testing.T) {
	var got []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = io.ReadAll(r.Body)
		require.Equal(t, "image/png", r.Header.Get("Content-Type"))
		switch r.URL.Path {
		case "/json":
			_, _ = w.Write([]byte(`{"code":0,"data":{"text":"请选出图中的正方形"}}`))
		case "/plain":
			_, _ = w.Write([]byte("请选出图中紫色的图形\n"))
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	p := pagetest.New()
	p.Shots["#q"] = []byte("png-bytes")

	txt, err := OCRPrompt{URL: srv.URL + "/json"}.ReadPrompt(context.Background(), p, "#q")
	require.NoError(t, err)
	require.Equal(t, "请选出图中的正方形", txt)
	require.Equal(t, []byte("png-bytes"), got)

	txt, err = OCRPrompt{URL: srv.URL + "/plain"}.ReadPrompt(context.Background(), p, "#q")
	require.NoError(t, err)
	require.Equal(t, "请选出图中紫色的图形", txt)

	_, err = OCRPrompt{URL: srv.URL + "/down"}.ReadPrompt(context.Background(), p, "#q")
	require.ErrorContains(t, err, "502")
}

func TestPromptChainSkipsUnparseableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"text":"请选出图中的三角形"}`))
	}))
	defer srv.Close()

	p := pagetest.New()
	p.Attrs["#q"] = map[string]string{"alt": "验证码"}
	p.Shots["#q"] = []byte("png")

	txt, err := NewPromptReader(srv.URL).ReadPrompt(context.Background(), p, "#q")
	require.NoError(t, err)
	require.Equal(t, "请选出图中的三角形", txt)

	_, err = NewPromptReader("").ReadPrompt(context.Background(), p, "#q")
	require.Error(t, err)
}
