package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Abdurazzoq789/uz-tts/internal/config"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/models"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/repositories"
	"github.com/Abdurazzoq789/uz-tts/internal/domain/services"
)

const starsPayloadPrefix = "tariff:"

// Bot runs the long-poll loop and translates Telegram updates into
// synthesis submissions, purchases and admin actions.
type Bot struct {
	client     *Client
	dispatcher *services.Dispatcher
	subs       *services.SubscriptionService
	users      repositories.UserRepository
	billing    config.BillingConfig
	hashtag    string
	interval   time.Duration
	adminIDs   map[int64]struct{}
	logger     *slog.Logger

	offset int64
}

func NewBot(
	client *Client,
	dispatcher *services.Dispatcher,
	subs *services.SubscriptionService,
	users repositories.UserRepository,
	cfg *config.Config,
	logger *slog.Logger,
) *Bot {
	interval := cfg.Telegram.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	admins := make(map[int64]struct{}, len(cfg.Admin.TelegramIDs))
	for _, id := range cfg.Admin.TelegramIDs {
		admins[id] = struct{}{}
	}
	return &Bot{
		client:     client,
		dispatcher: dispatcher,
		subs:       subs,
		users:      users,
		billing:    cfg.Billing,
		hashtag:    cfg.Telegram.TriggerHashtag,
		interval:   interval,
		adminIDs:   admins,
		logger:     logger,
	}
}

func (b *Bot) Run(ctx context.Context) {
	if err := b.bootstrapOffset(ctx); err != nil {
		b.logger.Warn("offset bootstrap failed", "error", err)
	}
	b.logger.Info("telegram bot started", "hashtag", b.hashtag)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("telegram bot stopped")
			return
		case <-ticker.C:
			if err := b.pollOnce(ctx); err != nil {
				b.logger.Warn("poll failed", "error", err)
			}
		}
	}
}

// bootstrapOffset skips the backlog accumulated while the bot was down
// so a restart does not replay old messages.
func (b *Bot) bootstrapOffset(ctx context.Context) error {
	updates, err := b.client.FetchUpdates(ctx, -1)
	if err != nil {
		return err
	}
	for _, upd := range updates {
		if upd.UpdateID >= b.offset {
			b.offset = upd.UpdateID + 1
		}
	}
	return nil
}

func (b *Bot) pollOnce(ctx context.Context) error {
	updates, err := b.client.FetchUpdates(ctx, b.offset)
	if err != nil {
		return err
	}
	for _, upd := range updates {
		if upd.UpdateID >= b.offset {
			b.offset = upd.UpdateID + 1
		}
		b.handleUpdate(ctx, upd)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, upd updateRecord) {
	switch {
	case upd.PreCheckoutQuery != nil:
		b.handlePreCheckout(ctx, upd.PreCheckoutQuery)
	case upd.ChannelPost != nil:
		b.handleChannelPost(ctx, upd.ChannelPost)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *messageBody) {
	if msg.From == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	b.upsertUser(ctx, msg.From)

	switch {
	case msg.SuccessfulPayment != nil:
		b.handleSuccessfulPayment(ctx, userID, chatID, msg.SuccessfulPayment)
	case len(msg.Photo) > 0 || msg.Document != nil:
		b.handleReceipt(ctx, userID, chatID, msg)
	case strings.HasPrefix(strings.TrimSpace(msg.Text), "/"):
		b.handleCommand(ctx, userID, chatID, strings.TrimSpace(msg.Text))
	case msg.Chat.Type == "private":
		b.submit(ctx, userID, chatID, models.ChatTypePrivate, msg.Text)
	default:
		// Group messages synthesize only when tagged.
		if strings.Contains(msg.Text, b.hashtag) {
			b.submit(ctx, userID, chatID, models.ChatTypeGroup, msg.Text)
		}
	}
}

// handleChannelPost reacts to tagged channel posts. Channel posts carry
// no author, so the channel itself is the accountable account: its
// subscription is granted against the chat ID.
func (b *Bot) handleChannelPost(ctx context.Context, msg *messageBody) {
	if !strings.Contains(msg.Text, b.hashtag) {
		return
	}
	b.submit(ctx, msg.Chat.ID, msg.Chat.ID, models.ChatTypeChannel, msg.Text)
}

func (b *Bot) submit(ctx context.Context, userID, chatID int64, chatType models.ChatType, text string) {
	result, err := b.dispatcher.Submit(ctx, services.SynthesisRequest{
		UserID:   userID,
		ChatID:   chatID,
		ChatType: chatType,
		RawText:  text,
	})
	if err != nil {
		b.replySubmitError(ctx, chatID, err)
		return
	}
	if result.Queued {
		b.send(ctx, chatID, "Audio tayyorlanmoqda...")
	}
}

func (b *Bot) replySubmitError(ctx context.Context, chatID int64, err error) {
	var quotaErr *services.QuotaExceededError
	switch {
	case errors.Is(err, models.ErrBlacklisted):
		// Blacklisted accounts get silence.
	case errors.As(err, &quotaErr):
		b.send(ctx, chatID, fmt.Sprintf(
			"Oylik limit tugadi. Limit %s da yangilanadi.\nKo'proq audio uchun /plans buyrug'ini bosing.",
			quotaErr.ResetAt.Format("2006-01-02")))
	case errors.Is(err, models.ErrScopeNotCovered):
		b.send(ctx, chatID, "Bepul tarif faqat shaxsiy chatda ishlaydi. Kanal va guruhlar uchun /plans ga qarang.")
	case errors.Is(err, models.ErrInvalidInput):
		b.send(ctx, chatID, "Matn topilmadi. Ovozga aylantirish uchun matn yuboring.")
	default:
		b.logger.Error("submit failed", "chat_id", chatID, "error", err)
		b.send(ctx, chatID, "Xatolik yuz berdi. Keyinroq qayta urinib ko'ring.")
	}
}

func (b *Bot) handleCommand(ctx context.Context, userID, chatID int64, text string) {
	parts := strings.Fields(text)
	cmd := strings.ToLower(strings.SplitN(parts[0], "@", 2)[0])
	args := parts[1:]

	if strings.HasPrefix(cmd, "/admin_") {
		b.handleAdminCommand(ctx, userID, chatID, cmd, args)
		return
	}

	switch cmd {
	case "/start", "/help":
		b.send(ctx, chatID, strings.Join([]string{
			"Matn yuboring, men uni o'zbekcha ovozga aylantiraman.",
			"",
			"/plans - tariflar",
			"/myplan - joriy tarif va qolgan limit",
			"/buy - obuna sotib olish",
			"/card - karta orqali to'lash",
		}, "\n"))
	case "/plans":
		b.sendPlans(ctx, chatID)
	case "/myplan":
		b.sendMyPlan(ctx, userID, chatID)
	case "/buy":
		b.sendInvoice(ctx, chatID)
	case "/card":
		b.sendCardInstructions(ctx, chatID)
	default:
		b.send(ctx, chatID, "Noma'lum buyruq. /help")
	}
}

func (b *Bot) sendPlans(ctx context.Context, chatID int64) {
	tariffs, err := b.subs.ListTariffs(ctx)
	if err != nil {
		b.logger.Error("failed to list tariffs", "error", err)
		b.send(ctx, chatID, "Xatolik yuz berdi. Keyinroq qayta urinib ko'ring.")
		return
	}
	lines := []string{"Tariflar:"}
	for _, t := range tariffs {
		limit := fmt.Sprintf("oyiga %d ta audio", t.MonthlyLimit)
		if t.Unlimited() {
			limit = "cheksiz audio"
		}
		scope := "faqat shaxsiy chat"
		if t.Scope == models.ScopeAllChats {
			scope = "shaxsiy chat, guruh va kanallar"
		}
		price := "bepul"
		if t.PriceCents > 0 {
			price = fmt.Sprintf("%.2f %s/oy", float64(t.PriceCents)/100, t.Currency)
		}
		lines = append(lines, fmt.Sprintf("- %s: %s, %s (%s)", t.Code, limit, scope, price))
	}
	lines = append(lines, "", "Sotib olish: /buy (Telegram Stars) yoki /card")
	b.send(ctx, chatID, strings.Join(lines, "\n"))
}

func (b *Bot) sendMyPlan(ctx context.Context, userID, chatID int64) {
	plan, err := b.subs.CurrentPlan(ctx, userID)
	if err != nil {
		b.logger.Error("failed to resolve plan", "user_id", userID, "error", err)
		b.send(ctx, chatID, "Xatolik yuz berdi. Keyinroq qayta urinib ko'ring.")
		return
	}
	remaining, _, err := b.dispatcher.Remaining(ctx, userID)
	if err != nil {
		b.logger.Error("failed to resolve quota", "user_id", userID, "error", err)
		b.send(ctx, chatID, "Xatolik yuz berdi. Keyinroq qayta urinib ko'ring.")
		return
	}

	lines := []string{"Tarif: " + plan.Tariff.Code}
	if remaining == models.UnlimitedQuota {
		lines = append(lines, "Limit: cheksiz")
	} else {
		lines = append(lines, fmt.Sprintf("Qolgan audio: %d", remaining))
		lines = append(lines, "Limit yangilanadi: "+models.PeriodResetAt(time.Now()).Format("2006-01-02"))
	}
	if plan.ExpiresAt != nil {
		lines = append(lines, "Obuna tugaydi: "+plan.ExpiresAt.Format("2006-01-02"))
	}
	b.send(ctx, chatID, strings.Join(lines, "\n"))
}

func (b *Bot) sendInvoice(ctx context.Context, chatID int64) {
	payload := starsPayloadPrefix + models.TariffCodeMonthly
	err := b.client.SendInvoice(ctx, chatID,
		"Oylik obuna",
		"Cheksiz audio, guruh va kanallarda ham ishlaydi",
		payload,
		b.billing.PaidMonthlyPriceCents)
	if err != nil {
		b.logger.Error("failed to send invoice", "chat_id", chatID, "error", err)
		b.send(ctx, chatID, "Hisob-fakturani yuborib bo'lmadi. Keyinroq urinib ko'ring yoki /card dan foydalaning.")
	}
}

func (b *Bot) sendCardInstructions(ctx context.Context, chatID int64) {
	if b.billing.ManualCardNumber == "" {
		b.send(ctx, chatID, "Karta orqali to'lov hozircha mavjud emas. /buy dan foydalaning.")
		return
	}
	b.send(ctx, chatID, strings.Join([]string{
		fmt.Sprintf("Oylik obuna: %.2f %s", float64(b.billing.PaidMonthlyPriceCents)/100, b.billing.Currency),
		"Karta: " + b.billing.ManualCardNumber,
		"Egasi: " + b.billing.ManualCardHolder,
		"",
		"To'lovdan so'ng chek rasmini shu yerga yuboring. Administrator tasdiqlagach obuna faollashadi.",
	}, "\n"))
}

func (b *Bot) handlePreCheckout(ctx context.Context, q *preCheckoutQuery) {
	if !strings.HasPrefix(q.InvoicePayload, starsPayloadPrefix) {
		if err := b.client.AnswerPreCheckoutQuery(ctx, q.ID, false, "Noma'lum buyurtma"); err != nil {
			b.logger.Error("failed to answer pre-checkout", "error", err)
		}
		return
	}
	if err := b.client.AnswerPreCheckoutQuery(ctx, q.ID, true, ""); err != nil {
		b.logger.Error("failed to answer pre-checkout", "error", err)
	}
}

// handleSuccessfulPayment records a Stars payment and confirms it in the
// same breath: the platform already charged the user.
func (b *Bot) handleSuccessfulPayment(ctx context.Context, userID, chatID int64, sp *successfulPayment) {
	tariffCode := strings.TrimPrefix(sp.InvoicePayload, starsPayloadPrefix)
	tariff, err := b.subs.TariffByCode(ctx, tariffCode)
	if err != nil {
		b.logger.Error("payment for unknown tariff", "payload", sp.InvoicePayload, "error", err)
		b.send(ctx, chatID, "To'lov qabul qilindi, lekin tarif topilmadi. Administratorga murojaat qiling.")
		return
	}

	chargeID := sp.TelegramPaymentChargeID
	payment := &models.Payment{
		ID:               uuid.New(),
		UserID:           userID,
		TariffID:         tariff.ID,
		AmountCents:      sp.TotalAmount,
		Currency:         sp.Currency,
		Method:           models.MethodTelegramStars,
		Status:           models.PaymentPending,
		TelegramChargeID: &chargeID,
	}
	if err := b.subs.CreatePayment(ctx, payment); err != nil {
		b.logger.Error("failed to record stars payment", "user_id", userID, "error", err)
		b.send(ctx, chatID, "To'lovni saqlab bo'lmadi. Administratorga murojaat qiling.")
		return
	}

	sub, err := b.subs.ConfirmPayment(ctx, payment.ID, userID)
	if err != nil {
		b.logger.Error("failed to confirm stars payment", "payment_id", payment.ID, "error", err)
		b.send(ctx, chatID, "To'lovni tasdiqlab bo'lmadi. Administratorga murojaat qiling.")
		return
	}

	b.send(ctx, chatID, "Obuna faollashdi! Amal qilish muddati: "+sub.EndsAt.Format("2006-01-02"))
}

// handleReceipt files a manual card payment for admin review.
func (b *Bot) handleReceipt(ctx context.Context, userID, chatID int64, msg *messageBody) {
	tariff, err := b.subs.TariffByCode(ctx, models.TariffCodeMonthly)
	if err != nil {
		b.logger.Error("failed to resolve monthly tariff", "error", err)
		b.send(ctx, chatID, "Xatolik yuz berdi. Keyinroq qayta urinib ko'ring.")
		return
	}

	var fileID string
	if len(msg.Photo) > 0 {
		fileID = msg.Photo[len(msg.Photo)-1].FileID
	} else if msg.Document != nil {
		fileID = msg.Document.FileID
	}

	payment := &models.Payment{
		ID:            uuid.New(),
		UserID:        userID,
		TariffID:      tariff.ID,
		AmountCents:   b.billing.PaidMonthlyPriceCents,
		Currency:      b.billing.Currency,
		Method:        models.MethodManualCard,
		Status:        models.PaymentPending,
		ReceiptFileID: &fileID,
	}
	if err := b.subs.CreatePayment(ctx, payment); err != nil {
		b.logger.Error("failed to record manual payment", "user_id", userID, "error", err)
		b.send(ctx, chatID, "Chekni saqlab bo'lmadi. Keyinroq qayta urinib ko'ring.")
		return
	}

	b.send(ctx, chatID, "Chek qabul qilindi. Administrator tasdiqlagach xabar beramiz.")
	for adminID := range b.adminIDs {
		b.send(ctx, adminID, fmt.Sprintf(
			"Yangi to'lov cheki.\nFoydalanuvchi: %d\nTo'lov: %s\nTasdiqlash: /admin_approve %s",
			userID, payment.ID, payment.ID))
	}
}

func (b *Bot) handleAdminCommand(ctx context.Context, userID, chatID int64, cmd string, args []string) {
	if !b.isAdmin(ctx, userID) {
		b.send(ctx, chatID, "Noma'lum buyruq. /help")
		return
	}

	switch cmd {
	case "/admin_blacklist":
		b.adminSetStatus(ctx, chatID, args, models.UserStatusBlacklisted)
	case "/admin_unblacklist":
		b.adminSetStatus(ctx, chatID, args, models.UserStatusActive)
	case "/admin_grant":
		if len(args) < 2 {
			b.send(ctx, chatID, "Usage: /admin_grant <user_id> <tariff_code>")
			return
		}
		targetID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			b.send(ctx, chatID, "Invalid user id")
			return
		}
		sub, err := b.subs.GrantSubscription(ctx, targetID, args[1])
		if err != nil {
			b.send(ctx, chatID, "Failed: "+err.Error())
			return
		}
		b.send(ctx, chatID, fmt.Sprintf("OK: %s granted to %d until %s", args[1], targetID, sub.EndsAt.Format("2006-01-02")))
	case "/admin_payments":
		b.adminListPayments(ctx, chatID)
	case "/admin_approve":
		b.adminFinalizePayment(ctx, userID, chatID, args, true)
	case "/admin_reject":
		b.adminFinalizePayment(ctx, userID, chatID, args, false)
	case "/admin_stats":
		b.adminStats(ctx, chatID)
	default:
		b.send(ctx, chatID, "Unknown admin command")
	}
}

func (b *Bot) adminSetStatus(ctx context.Context, chatID int64, args []string, status models.UserStatus) {
	if len(args) < 1 {
		b.send(ctx, chatID, "Usage: /admin_blacklist <user_id>")
		return
	}
	targetID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.send(ctx, chatID, "Invalid user id")
		return
	}
	if err := b.users.UpdateStatus(ctx, targetID, status); err != nil {
		b.send(ctx, chatID, "Failed: "+err.Error())
		return
	}
	b.send(ctx, chatID, fmt.Sprintf("OK: user %d is now %s", targetID, status))
}

func (b *Bot) adminListPayments(ctx context.Context, chatID int64) {
	payments, err := b.subs.ListPendingPayments(ctx)
	if err != nil {
		b.send(ctx, chatID, "Failed: "+err.Error())
		return
	}
	if len(payments) == 0 {
		b.send(ctx, chatID, "No pending payments.")
		return
	}
	lines := []string{"Pending payments:"}
	for _, p := range payments {
		lines = append(lines, fmt.Sprintf("- %s | user=%d | %.2f %s | %s",
			p.ID, p.UserID, float64(p.AmountCents)/100, p.Currency, p.CreatedAt.Format("2006-01-02 15:04")))
	}
	b.send(ctx, chatID, strings.Join(lines, "\n"))
}

func (b *Bot) adminFinalizePayment(ctx context.Context, adminID, chatID int64, args []string, approve bool) {
	if len(args) < 1 {
		b.send(ctx, chatID, "Usage: /admin_approve <payment_id>")
		return
	}
	paymentID, err := uuid.Parse(args[0])
	if err != nil {
		b.send(ctx, chatID, "Invalid payment id")
		return
	}

	if approve {
		sub, err := b.subs.ConfirmPayment(ctx, paymentID, adminID)
		if err != nil {
			if errors.Is(err, models.ErrPaymentFinalized) {
				b.send(ctx, chatID, "Payment already finalized.")
				return
			}
			b.send(ctx, chatID, "Failed: "+err.Error())
			return
		}
		b.send(ctx, chatID, "OK: payment confirmed")
		b.send(ctx, sub.UserID, "To'lovingiz tasdiqlandi! Obuna faollashdi: "+sub.EndsAt.Format("2006-01-02"))
		return
	}

	reason := "rejected by administrator"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}
	payment, err := b.subs.PaymentByID(ctx, paymentID)
	if err != nil {
		b.send(ctx, chatID, "Failed: "+err.Error())
		return
	}
	if err := b.subs.RejectPayment(ctx, paymentID, adminID, reason); err != nil {
		if errors.Is(err, models.ErrPaymentFinalized) {
			b.send(ctx, chatID, "Payment already finalized.")
			return
		}
		b.send(ctx, chatID, "Failed: "+err.Error())
		return
	}
	b.send(ctx, chatID, "OK: payment rejected")
	b.send(ctx, payment.UserID, "To'lovingiz rad etildi: "+reason)
}

func (b *Bot) adminStats(ctx context.Context, chatID int64) {
	count, err := b.users.CountUsers(ctx)
	if err != nil {
		b.send(ctx, chatID, "Failed: "+err.Error())
		return
	}
	pending, err := b.subs.ListPendingPayments(ctx)
	if err != nil {
		b.send(ctx, chatID, "Failed: "+err.Error())
		return
	}
	b.send(ctx, chatID, fmt.Sprintf("users=%d\npending_payments=%d", count, len(pending)))
}

func (b *Bot) isAdmin(ctx context.Context, userID int64) bool {
	if _, ok := b.adminIDs[userID]; ok {
		return true
	}
	user, err := b.users.GetUserByID(ctx, userID)
	return err == nil && user.IsAdmin
}

func (b *Bot) upsertUser(ctx context.Context, from *userBody) {
	user := &models.User{
		ID:     from.ID,
		Status: models.UserStatusActive,
	}
	if from.Username != "" {
		user.Username = &from.Username
	}
	if from.FirstName != "" {
		user.FirstName = &from.FirstName
	}
	if err := b.users.UpsertUser(ctx, user); err != nil {
		b.logger.Error("failed to upsert user", "user_id", from.ID, "error", err)
		return
	}
	// Accounts listed in ADMIN_TELEGRAM_IDS are promoted on first contact.
	if _, ok := b.adminIDs[from.ID]; ok && !user.IsAdmin {
		if err := b.users.SetAdmin(ctx, from.ID, true); err != nil {
			b.logger.Error("failed to promote admin", "user_id", from.ID, "error", err)
		}
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.client.SendMessage(ctx, chatID, text); err != nil {
		b.logger.Warn("failed to send message", "chat_id", chatID, "error", err)
	}
}
