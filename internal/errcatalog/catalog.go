// Package errcatalog maps an (error kind, language) pair to a localized
// message template. Missing (kind, lang) falls back to (kind, en). New
// panics if a taxonomy kind has no English template; Message panics on a
// kind the catalog does not know.
package errcatalog

import (
	"fmt"
	"strings"

	"github.com/sentrygate/gateway/internal/langdetect"
	apperr "github.com/sentrygate/gateway/pkg/errors"
)

// Catalog is an immutable lookup built once at process start.
type Catalog struct {
	templates map[apperr.Kind]map[langdetect.Tag]string
}

// entry is a single (kind, lang, template) row used to build the default
// catalog. Templates may contain a single "{reason}" placeholder.
type entry struct {
	kind     apperr.Kind
	lang     langdetect.Tag
	template string
}

var defaultEntries = []entry{
	{apperr.KindPromptBlocked, langdetect.English, "Your input was blocked by a safety scanner. Reason: {reason}"},
	{apperr.KindPromptBlocked, langdetect.Chinese, "您的输入被安全扫描器阻止。原因: {reason}"},
	{apperr.KindPromptBlocked, langdetect.Vietnamese, "Đầu vào của bạn đã bị chặn bởi bộ quét an toàn. Lý do: {reason}"},
	{apperr.KindPromptBlocked, langdetect.Japanese, "入力は安全スキャナーによってブロックされました。理由: {reason}"},
	{apperr.KindPromptBlocked, langdetect.Korean, "입력이 보안 스캐너에 의해 차단되었습니다. 사유: {reason}"},
	{apperr.KindPromptBlocked, langdetect.Russian, "Ваш ввод заблокирован сканером безопасности. Причина: {reason}"},
	{apperr.KindPromptBlocked, langdetect.Arabic, "تم حظر المدخلات بواسطة ماسح الأمان. السبب: {reason}"},

	{apperr.KindResponseBlocked, langdetect.English, "Model output was blocked by a safety scanner. Reason: {reason}"},
	{apperr.KindResponseBlocked, langdetect.Chinese, "模型输出被安全扫描器阻止。原因: {reason}"},
	{apperr.KindResponseBlocked, langdetect.Vietnamese, "Đầu ra của mô hình đã bị chặn bởi bộ quét an toàn. Lý do: {reason}"},
	{apperr.KindResponseBlocked, langdetect.Japanese, "モデルの出力は安全スキャナーによってブロックされました。理由: {reason}"},
	{apperr.KindResponseBlocked, langdetect.Korean, "모델 출력이 보안 스캐너에 의해 차단되었습니다. 사유: {reason}"},
	{apperr.KindResponseBlocked, langdetect.Russian, "Вывод модели заблокирован сканером безопасности. Причина: {reason}"},
	{apperr.KindResponseBlocked, langdetect.Arabic, "تم حظر مخرجات النموذج بواسطة ماسح الأمان. السبب: {reason}"},

	{apperr.KindServerBusy, langdetect.English, "The server is busy. Please retry shortly."},
	{apperr.KindServerBusy, langdetect.Chinese, "服务器繁忙，请稍后重试。"},

	{apperr.KindRequestTimeout, langdetect.English, "The request timed out."},
	{apperr.KindRequestTimeout, langdetect.Chinese, "请求超时。"},

	{apperr.KindUpstreamError, langdetect.English, "The upstream model backend returned an error."},
	{apperr.KindUpstreamError, langdetect.Chinese, "上游模型后端返回了错误。"},

	{apperr.KindAccessDenied, langdetect.English, "Access denied."},
	{apperr.KindAccessDenied, langdetect.Chinese, "访问被拒绝。"},

	{apperr.KindBadRequest, langdetect.English, "The request was malformed: {reason}"},
	{apperr.KindScannerError, langdetect.English, "A content scanner failed: {reason}"},
	{apperr.KindInternal, langdetect.English, "An internal error occurred."},
}

// knownKinds is the full taxonomy; New panics if any is unrepresented for
// at least langdetect.English, since a missing kind is a programming error.
var knownKinds = []apperr.Kind{
	apperr.KindAccessDenied,
	apperr.KindServerBusy,
	apperr.KindRequestTimeout,
	apperr.KindPromptBlocked,
	apperr.KindResponseBlocked,
	apperr.KindUpstreamError,
	apperr.KindScannerError,
	apperr.KindBadRequest,
	apperr.KindInternal,
}

// New builds the default catalog from the built-in localized templates.
func New() *Catalog {
	c := &Catalog{templates: make(map[apperr.Kind]map[langdetect.Tag]string)}
	for _, e := range defaultEntries {
		c.Set(e.kind, e.lang, e.template)
	}
	for _, k := range knownKinds {
		if _, ok := c.templates[k][langdetect.English]; !ok {
			panic(fmt.Sprintf("errcatalog: kind %q has no English template", k))
		}
	}
	return c
}

// Set installs or overrides a (kind, lang) template. Intended for tests and
// for operators customizing wording via configuration.
func (c *Catalog) Set(kind apperr.Kind, lang langdetect.Tag, template string) {
	if c.templates[kind] == nil {
		c.templates[kind] = make(map[langdetect.Tag]string)
	}
	c.templates[kind][lang] = template
}

// Message renders the localized template for (kind, lang), substituting
// {reason}. Missing (kind, lang) falls back to (kind, en).
func (c *Catalog) Message(kind apperr.Kind, lang langdetect.Tag, reason string) string {
	byLang, ok := c.templates[kind]
	if !ok {
		panic(fmt.Sprintf("errcatalog: unknown error kind %q", kind))
	}
	template, ok := byLang[lang]
	if !ok {
		template, ok = byLang[langdetect.English]
		if !ok {
			panic(fmt.Sprintf("errcatalog: kind %q has no English fallback", kind))
		}
	}
	return strings.ReplaceAll(template, "{reason}", reason)
}
