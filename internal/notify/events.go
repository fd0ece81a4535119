package notify

import (
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Payload builders for the product's standard notifications. The copy is
// Brazilian Portuguese, like the rest of the user-facing text.

const (
	untitledPost = "Sem título"
	newPostTitle = "Novo Post"

	commentExcerptLen = 200
	captionExcerptLen = 500
)

var ptBR = message.NewPrinter(language.BrazilianPortuguese)

// Post is the subset of a post that notifications mention.
type Post struct {
	ID          int64
	Title       string
	Caption     string
	Platforms   []string
	ScheduledAt *time.Time
}

func (p Post) title(fallback string) string {
	if strings.TrimSpace(p.Title) == "" {
		return fallback
	}
	return p.Title
}

func PostPublished(tenantID int64, post Post) Payload {
	return Payload{
		TenantID: tenantID,
		Type:     TypePostPublished,
		Title:    "Post Publicado!",
		Message: fmt.Sprintf("O post \"%s\" foi publicado com sucesso em: %s.",
			post.title(untitledPost), strings.Join(post.Platforms, ", ")),
		PostID: post.ID,
	}
}

func PostFailed(tenantID int64, post Post, reason string) Payload {
	return Payload{
		TenantID: tenantID,
		Type:     TypePostFailed,
		Title:    "Erro na Publicação",
		Message: fmt.Sprintf("O post \"%s\" não pôde ser publicado.\n\n*Motivo:* %s\n\nAcesse o painel para mais detalhes.",
			post.title(untitledPost), reason),
		PostID: post.ID,
	}
}

// ApprovalNeeded asks a specific contact to approve a post.
func ApprovalNeeded(tenantID, contactID int64, post Post, loc *time.Location) Payload {
	if loc == nil {
		loc = time.Local
	}
	schedule := "📅 Publicação imediata após aprovação"
	if post.ScheduledAt != nil {
		at := post.ScheduledAt.In(loc)
		schedule = fmt.Sprintf("📅 Agendado para: %s às %s", at.Format("02/01/2006"), at.Format("15:04"))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📝 *Título:* %s\n\n", post.title(newPostTitle))
	fmt.Fprintf(&b, "💬 *Legenda:*\n%s\n\n", excerpt(post.Caption, captionExcerptLen))
	fmt.Fprintf(&b, "📱 *Plataformas:* %s\n%s\n\n", strings.Join(post.Platforms, ", "), schedule)
	b.WriteString("Por favor, responda com:\n✅ *Aprovar* - para autorizar a publicação\n❌ *Rejeitar* - para solicitar alterações")

	return Payload{
		TenantID:    tenantID,
		Type:        TypeApprovalNeeded,
		Title:       "Solicitação de Aprovação",
		Message:     b.String(),
		PostID:      post.ID,
		RecipientID: contactID,
	}
}

func ApprovalReceived(tenantID int64, post Post, approved bool, feedback string) Payload {
	p := Payload{
		TenantID: tenantID,
		Type:     TypeApprovalReceived,
		PostID:   post.ID,
	}
	title := post.title(untitledPost)
	if approved {
		p.Title = "Post Aprovado!"
		p.Message = fmt.Sprintf("O post \"%s\" foi aprovado e será publicado conforme agendado.", title)
		return p
	}
	p.Title = "Post Rejeitado"
	p.Message = fmt.Sprintf("O post \"%s\" foi rejeitado.", title)
	if feedback != "" {
		p.Message += "\n\n*Feedback:* " + feedback
	}
	return p
}

func NewComment(tenantID int64, post Post, author, text string) Payload {
	return Payload{
		TenantID: tenantID,
		Type:     TypeNewComment,
		Title:    "Novo Comentário",
		Message: fmt.Sprintf("*%s* comentou no post \"%s\":\n\n\"%s\"",
			author, post.title(untitledPost), excerpt(text, commentExcerptLen)),
		PostID: post.ID,
	}
}

// DailyStats feeds the daily summary.
type DailyStats struct {
	PostsPublished   int64 `json:"posts_published" db:"posts_published"`
	TotalReach       int64 `json:"total_reach" db:"total_reach"`
	TotalEngagement  int64 `json:"total_engagement" db:"total_engagement"`
	PendingApprovals int64 `json:"pending_approvals" db:"-"`
}

func DailySummary(tenantID int64, s DailyStats) Payload {
	return Payload{
		TenantID: tenantID,
		Type:     TypeDailySummary,
		Title:    "Resumo do Dia",
		Message: fmt.Sprintf("📈 *Estatísticas de Hoje*\n\n• Posts publicados: %d\n• Alcance total: %s\n• Engajamento: %s\n• Aprovações pendentes: %d\n\nContinue assim! 🚀",
			s.PostsPublished, ptBR.Sprintf("%d", s.TotalReach), ptBR.Sprintf("%d", s.TotalEngagement), s.PendingApprovals),
	}
}

// QuotaWarning reports usage of a plan limit. A non-positive limit is
// reported as 100%.
func QuotaWarning(tenantID int64, resource string, used, limit int64) Payload {
	pct := int64(100)
	if limit > 0 {
		pct = int64(math.Round(float64(used) / float64(limit) * 100))
	}
	return Payload{
		TenantID: tenantID,
		Type:     TypeQuotaWarning,
		Title:    "Alerta de Limite",
		Message: fmt.Sprintf("Você já utilizou *%d%%* do seu limite de %s.\n\n• Usado: %d\n• Limite: %d\n\nConsidere fazer upgrade do seu plano para continuar criando conteúdo sem interrupções.",
			pct, resource, used, limit),
	}
}

// excerpt cuts s to n runes and appends "..." when it was longer.
func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
