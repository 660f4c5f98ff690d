package webhook

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v3"

	"github.com/petrelware/petrel/src/structs"
)

// InteractionHandler produces the response for one interaction. PINGs are
// answered by the middleware and never reach it.
type InteractionHandler func(i *structs.Interaction) (*structs.InteractionResponse, error)

// Server receives interaction webhooks, verifies their ed25519 signatures
// and answers liveness PINGs, delegating everything else to the registered
// handler.
type Server struct {
	router    *fiber.App
	publicKey ed25519.PublicKey
	handler   InteractionHandler
	log       *slog.Logger
}

type ServerArguments struct {
	// PublicKeyHex is the application's verification key from the
	// developer portal.
	PublicKeyHex string
	Handler      InteractionHandler
	Logger       *slog.Logger
}

func NewServer(args ServerArguments) (*Server, error) {
	publicKey, err := hex.DecodeString(args.PublicKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to decode public key: %w", err)
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(publicKey))
	}
	if args.Logger == nil {
		args.Logger = slog.Default()
	}
	server := &Server{
		publicKey: ed25519.PublicKey(publicKey),
		handler:   args.Handler,
		log:       args.Logger,
	}
	server.setupRouter()
	return server, nil
}

func (server *Server) setupRouter() {
	router := fiber.New()
	router.Use("/", server.VerifyKeyMiddleware)
	router.Use("/", server.PingRequestMiddleware)
	router.Post("/interactions", func(c fiber.Ctx) error {
		req := new(structs.Interaction)
		if err := c.Bind().JSON(req); err != nil {
			server.log.Error("failed to decode interaction", "error", err)
			return c.Status(http.StatusBadRequest).SendString("bad request")
		}
		if server.handler == nil {
			return c.Status(http.StatusNotImplemented).SendString("no interaction handler registered")
		}
		res, err := server.handler(req)
		if err != nil {
			server.log.Error("interaction handler failed", "error", err)
			return c.Status(http.StatusInternalServerError).SendString("internal server error")
		}
		return c.JSON(res)
	})
	server.router = router
}

// VerifyKeyMiddleware rejects any request whose body is not signed with the
// application's key. Discord probes interaction endpoints with bad
// signatures and disables those that accept them.
func (server *Server) VerifyKeyMiddleware(c fiber.Ctx) error {
	headers := c.GetReqHeaders()
	timestamp, ok := headers["X-Signature-Timestamp"]
	if !ok || len(timestamp) == 0 {
		return c.Status(http.StatusUnauthorized).SendString("missing timestamp signature")
	}
	signature, ok := headers["X-Signature-Ed25519"]
	if !ok || len(signature) == 0 {
		return c.Status(http.StatusUnauthorized).SendString("missing ed25519 signature")
	}
	signatureRaw, err := hex.DecodeString(signature[0])
	if err != nil {
		return c.Status(http.StatusUnauthorized).SendString("malformed signature")
	}
	message := bytes.Join([][]byte{[]byte(timestamp[0]), c.BodyRaw()}, nil)
	if !ed25519.Verify(server.publicKey, message, signatureRaw) {
		return c.Status(http.StatusUnauthorized).SendString("invalid request signature")
	}
	return c.Next()
}

// PingRequestMiddleware answers PINGs before they reach the interaction
// handler.
func (server *Server) PingRequestMiddleware(c fiber.Ctx) error {
	i := new(structs.Interaction)
	if err := c.Bind().JSON(i); err != nil {
		return err
	}
	if i.Type == structs.InteractionTypePing {
		return c.JSON(structs.InteractionResponse{
			Type: structs.InteractionResponseTypePong,
		})
	}
	return c.Next()
}

func (server *Server) StartServer(ctx context.Context, addr string) error {
	server.log.Info("webhook server starting", "addr", addr)
	return server.router.Listen(addr, fiber.ListenConfig{
		GracefulContext: ctx,
		OnShutdownSuccess: func() {
			server.log.Info("webhook server stopped")
		},
	})
}
