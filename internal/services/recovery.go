package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"github.com/lifetravel/cartguard/internal/config"
	"github.com/lifetravel/cartguard/internal/models"
	"github.com/lifetravel/cartguard/internal/utils"
	"github.com/lifetravel/cartguard/pkg/logger"
	"gorm.io/gorm"
)

// ErrInvalidRecoveryLink is returned for any token/nonce validation failure.
// The reason is logged, not surfaced, so callers cannot probe the check.
var ErrInvalidRecoveryLink = errors.New("invalid or expired recovery link")

// RecoveryService builds recovery links, sends templated recovery emails,
// and validates incoming recovery attempts.
type RecoveryService struct {
	db      *gorm.DB
	carts   *CartService
	log     *SecurityLogger
	email   *EmailService
	configs *SystemConfigService
	cfg     *config.RecoveryConfig
}

func NewRecoveryService(db *gorm.DB, carts *CartService, log *SecurityLogger, email *EmailService, cfg *config.RecoveryConfig) *RecoveryService {
	return &RecoveryService{
		db:      db,
		carts:   carts,
		log:     log,
		email:   email,
		configs: NewSystemConfigService(db),
		cfg:     cfg,
	}
}

func nonceAction(cartID uint) string {
	return fmt.Sprintf("recover_cart_%d", cartID)
}

// RecoveryURL assembles the public link embedded in recovery emails:
// token (base64 id|email, unsigned) plus a one-time action nonce.
func (s *RecoveryService) RecoveryURL(cart *models.AbandonedCart) string {
	token := utils.EncodeRecoveryToken(cart.ID, cart.Email)
	nonce := utils.CreateNonce(nonceAction(cart.ID), time.Now())

	q := url.Values{}
	q.Set("token", token)
	q.Set("nonce", nonce)
	return strings.TrimRight(s.cfg.BaseURL, "/") + "/recover?" + q.Encode()
}

// SendRecoveryEmail sends one recovery email for a cart. Returns false
// without sending when the cart is already recovered or its email is
// invalid. ReminderSent is set only after successful delivery, so a failed
// send can be retried later.
func (s *RecoveryService) SendRecoveryEmail(cartID uint) (bool, error) {
	cart, err := s.carts.Get(cartID)
	if err != nil {
		return false, err
	}

	if cart.Recovered {
		return false, nil
	}
	if _, err := mail.ParseAddress(cart.Email); err != nil {
		logger.Warn().Uint("cart_id", cartID).Msg("cart has no valid email, skipping recovery")
		return false, nil
	}

	subject := s.configs.GetString("recovery_email_subject", "Your excursion is waiting for you")
	template := s.configs.GetString("recovery_email_template", "")
	body := renderTemplate(template, map[string]string{
		"customer_name": customerName(cart.Email),
		"recovery_link": s.RecoveryURL(cart),
		"cart_total":    fmt.Sprintf("%.2f %s", cart.CartTotal, cart.Currency),
		"site_name":     s.cfg.SiteName,
	})

	if err := s.email.SendHTML([]string{cart.Email}, subject, body); err != nil {
		return false, err
	}

	err = s.db.Model(&models.AbandonedCart{}).Where("id = ?", cart.ID).
		Updates(map[string]interface{}{"reminder_sent": true, "last_updated": time.Now()}).Error
	if err != nil {
		// Mail already left; the next run may send a duplicate. Accepted,
		// there is no transaction spanning SMTP and the database.
		logger.Error().Err(err).Uint("cart_id", cart.ID).Msg("failed to mark reminder_sent after delivery")
		return true, err
	}

	id := cart.ID
	s.log.LogEvent(EventInput{
		EventType: models.EventRecoveryEmailSent,
		Severity:  models.SeverityInfo,
		CartID:    &id,
		EventData: map[string]interface{}{"email": cart.Email},
	})

	return true, nil
}

// ProcessRecoveryTask adapts SendRecoveryEmail to the task queue's
// processor signature.
func (s *RecoveryService) ProcessRecoveryTask(ctx context.Context, task *RecoveryTask) error {
	_, err := s.SendRecoveryEmail(task.CartID)
	return err
}

// ValidateRecoveryLink checks an incoming token+nonce pair and returns the
// cart when valid. Every attempt is logged as a token_validation event with
// an is_valid marker, feeding the brute force detector and severity
// escalation, plus a cart_recovery_attempt event for the per-cart detector.
func (s *RecoveryService) ValidateRecoveryLink(token, nonce, ip, userAgent, requestURI string) (*models.AbandonedCart, error) {
	cartID, email, err := utils.DecodeRecoveryToken(token)
	if err != nil {
		s.logValidation(nil, ip, userAgent, requestURI, false, "malformed token")
		return nil, ErrInvalidRecoveryLink
	}

	id := cartID
	s.log.LogEvent(EventInput{
		EventType: models.EventCartRecoveryAttempt,
		Severity:  models.SeverityInfo,
		CartID:    &id,
		IPAddress: ip,
		UserAgent: userAgent,
	})

	if utils.VerifyNonce(nonce, nonceAction(cartID), time.Now()) == 0 {
		s.logValidation(&id, ip, userAgent, requestURI, false, "bad nonce")
		return nil, ErrInvalidRecoveryLink
	}

	cart, err := s.carts.Get(cartID)
	if err != nil {
		s.logValidation(&id, ip, userAgent, requestURI, false, "unknown cart")
		return nil, ErrInvalidRecoveryLink
	}

	if !strings.EqualFold(cart.Email, email) {
		s.logValidation(&id, ip, userAgent, requestURI, false, "email mismatch")
		return nil, ErrInvalidRecoveryLink
	}

	s.logValidation(&id, ip, userAgent, requestURI, true, "")
	return cart, nil
}

// ConfirmRecovery marks a cart recovered after checkout completes. The same
// token+nonce pair used to open the cart authorizes the confirmation.
func (s *RecoveryService) ConfirmRecovery(token, nonce string, orderID *uint, ip, userAgent string) (*models.AbandonedCart, error) {
	cart, err := s.ValidateRecoveryLink(token, nonce, ip, userAgent, "/recover/confirm")
	if err != nil {
		return nil, err
	}

	if !cart.Recovered {
		if err := s.carts.MarkRecovered(cart.ID, orderID); err != nil {
			return nil, err
		}
		cart.Recovered = true
		cart.OrderID = orderID

		id := cart.ID
		s.log.LogEvent(EventInput{
			EventType: models.EventCartRecovered,
			Severity:  models.SeverityNotice,
			CartID:    &id,
			IPAddress: ip,
			EventData: map[string]interface{}{"cart_total": cart.CartTotal},
		})
	}

	return cart, nil
}

func (s *RecoveryService) logValidation(cartID *uint, ip, userAgent, requestURI string, valid bool, reason string) {
	data := map[string]interface{}{"is_valid": valid}
	if reason != "" {
		data["reason"] = reason
	}
	severity := models.SeverityInfo
	if !valid {
		severity = models.SeverityNotice
	}
	s.log.LogEvent(EventInput{
		EventType:  models.EventTokenValidation,
		Severity:   severity,
		CartID:     cartID,
		IPAddress:  ip,
		UserAgent:  userAgent,
		RequestURI: requestURI,
		EventData:  data,
	})
}

// renderTemplate substitutes {{placeholder}} markers in an HTML template.
func renderTemplate(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{{"+key+"}}", value)
	}
	return out
}

// customerName derives a display name from the email local part.
func customerName(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	local = strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local)
	return strings.Title(local)
}
