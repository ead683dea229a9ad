package whatsapp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AzielCF/az-prospector/core/config"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waCompanionReg"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	// drivers del device store
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// ReplyFunc recibe el teléfono crudo de quien escribió
type ReplyFunc func(ctx context.Context, rawPhone string)

// Session es la conexión multi-device de whatsmeow usada para envíos y respuestas
type Session struct {
	client    *whatsmeow.Client
	container *sqlstore.Container

	replyMu sync.RWMutex
	onReply ReplyFunc
}

func initDatabase(ctx context.Context, dbLog waLog.Logger, dbURI string) (*sqlstore.Container, error) {
	if strings.HasPrefix(dbURI, "postgres:") || strings.HasPrefix(dbURI, "postgresql:") {
		return sqlstore.New(ctx, "postgres", dbURI, dbLog)
	}
	return sqlstore.New(ctx, "sqlite3", dbURI, dbLog)
}

func configureDeviceProps() {
	chrome := waCompanionReg.DeviceProps_CHROME
	osName := "az-prospector"
	store.DeviceProps.PlatformType = &chrome
	store.DeviceProps.Os = &osName
}

// OpenSession abre el device store, crea el cliente y conecta. Si no hay sesión
// vinculada, los códigos QR se escriben en el log hasta que se escanee uno.
func OpenSession(ctx context.Context, cfg config.WhatsmeowConfig) (*Session, error) {
	level := cfg.LogLevel
	if level == "" {
		level = "ERROR"
	}

	container, err := initDatabase(ctx, waLog.Stdout("Database", level, true), cfg.DBURI)
	if err != nil {
		return nil, fmt.Errorf("whatsmeow store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsmeow device: %w", err)
	}

	configureDeviceProps()

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", level, true))
	client.EnableAutoReconnect = true
	client.AutoTrustIdentity = true

	s := &Session{client: client, container: container}
	client.AddEventHandler(s.handleEvent)

	if client.Store.ID == nil {
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return nil, fmt.Errorf("whatsmeow qr channel: %w", err)
		}
		if err := client.Connect(); err != nil {
			return nil, fmt.Errorf("whatsmeow connect: %w", err)
		}
		go func() {
			for evt := range qrChan {
				switch evt.Event {
				case "code":
					logrus.Infof("[WHATSMEOW] Scan this QR code to link the sender account: %s", evt.Code)
				default:
					logrus.Infof("[WHATSMEOW] Login event: %s", evt.Event)
				}
			}
		}()
		return s, nil
	}

	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("whatsmeow connect: %w", err)
	}
	return s, nil
}

// OnReply registra el callback de respuestas entrantes
func (s *Session) OnReply(fn ReplyFunc) {
	s.replyMu.Lock()
	s.onReply = fn
	s.replyMu.Unlock()
}

func (s *Session) Client() *whatsmeow.Client { return s.client }

func (s *Session) Close() {
	if s.client != nil {
		s.client.Disconnect()
	}
	if s.container != nil {
		_ = s.container.Close()
	}
}

func (s *Session) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		logrus.Info("[WHATSMEOW] Connected")
	case *events.LoggedOut:
		logrus.Warnf("[WHATSMEOW] Logged out (reason %v); relink required", evt.Reason)
	case *events.Message:
		s.handleMessage(evt)
	}
}

func (s *Session) handleMessage(evt *events.Message) {
	if evt.Info.IsFromMe || evt.Info.IsGroup || evt.Info.IsIncomingBroadcast() {
		return
	}

	sender := evt.Info.Sender.ToNonAD()
	if sender.Server == types.HiddenUserServer {
		sender = s.resolvePN(sender)
	}
	if sender.Server != types.DefaultUserServer {
		logrus.Debugf("[WHATSMEOW] Ignoring message from unresolved sender %s", evt.Info.Sender.String())
		return
	}

	s.replyMu.RLock()
	fn := s.onReply
	s.replyMu.RUnlock()
	if fn == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	fn(ctx, sender.User)
}

// resolvePN traduce un LID al número de teléfono usando el store de whatsmeow
func (s *Session) resolvePN(lid types.JID) types.JID {
	if s.client == nil || s.client.Store == nil || s.client.Store.LIDs == nil {
		return lid
	}
	pn, err := s.client.Store.LIDs.GetPNForLID(context.Background(), lid)
	if err != nil || pn.IsEmpty() {
		return lid
	}
	return pn.ToNonAD()
}
