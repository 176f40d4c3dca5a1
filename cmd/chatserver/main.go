package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studychat/chat-server/internal/coordinator"
	"github.com/studychat/chat-server/internal/messaging"
	"github.com/studychat/chat-server/internal/protocol"
	"github.com/studychat/chat-server/internal/ratelimit"
	"github.com/studychat/chat-server/internal/ws"
)

func main() {
	config := ws.DefaultServerConfig()

	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		config.ListenAddr = addr
	}
	if v := os.Getenv("WORKER_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.WorkerPoolSize = n
		}
	}
	if v := os.Getenv("MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.MaxConnections = n
		}
	}
	if v := os.Getenv("OUTBOUND_QUEUE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.OutboundQueue = n
		}
	}
	if v := os.Getenv("READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.ReadTimeout = d
		}
	}
	if v := os.Getenv("WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.WriteTimeout = d
		}
	}

	// --- NATS firehose (optional) ---
	var natsClient *messaging.Client
	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		natsConfig := messaging.DefaultConfig()
		natsConfig.URL = natsURL
		natsConfig.Name = "studychat-chatserver"

		var err error
		natsClient, err = messaging.NewClient(natsConfig)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	}

	// --- Redis rate limiting (optional) ---
	var limiter *ratelimit.Limiter
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(ctx).Err(); err != nil {
			cancel()
			log.Fatalf("failed to connect to Redis: %v", err)
		}
		cancel()
		limiter = ratelimit.NewLimiter(rdb)
	}

	log.Printf("Study Chat server starting")
	log.Printf("  listen_addr:     %s", config.ListenAddr)
	log.Printf("  worker_pool:     %d", config.WorkerPoolSize)
	log.Printf("  max_connections: %d", config.MaxConnections)
	log.Printf("  outbound_queue:  %d", config.OutboundQueue)
	log.Printf("  read_timeout:    %s", config.ReadTimeout)
	log.Printf("  write_timeout:   %s", config.WriteTimeout)
	log.Printf("  rate_limiting:   %v", limiter != nil)
	log.Printf("  firehose:        %v", natsClient != nil)

	dispatcher := ws.NewMessageDispatcher()
	server := ws.NewServer(config, dispatcher.Dispatch)

	router := coordinator.NewRouter(server)
	if natsClient != nil {
		router.SetPublisher(natsClient)
	}
	server.SetStats(router)
	server.SetOnDisconnect(router.HandleDisconnect)

	// sendRouterError maps a coordinator rejection onto an error event for
	// the offending connection. Non-coordinator errors get a generic code.
	sendRouterError := func(conn *ws.Connection, err error) {
		if cerr, ok := err.(*coordinator.Error); ok {
			dispatcher.SendError(conn, cerr.Code, cerr.Message)
			return
		}
		dispatcher.SendError(conn, "internal_error", "failed to process event")
	}

	// -----------------------------------------------------------------------
	// user_connect — announce the authenticated identity
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeUserConnect, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.UserConnectMsg)
		if !ok {
			return
		}
		if err := router.HandleUserConnect(conn.ID, m); err != nil {
			sendRouterError(conn, err)
		}
	})

	// -----------------------------------------------------------------------
	// join_room — enter a room, implicitly leaving the previous one
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeJoinRoom, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.JoinRoomMsg)
		if !ok {
			return
		}
		if err := router.HandleJoinRoom(conn.ID, m); err != nil {
			sendRouterError(conn, err)
		}
	})

	// -----------------------------------------------------------------------
	// send_message — broadcast to the sender's room
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeSendMessage, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.SendMessageMsg)
		if !ok {
			return
		}

		if limiter != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			allowed, _ := limiter.Allow(ctx, conn.ID, ratelimit.RuleMessage)
			cancel()
			if !allowed {
				data, err := protocol.NewServerMessage(protocol.TypeRateLimited, protocol.RateLimitedMsg{
					RetryAfter: int(ratelimit.RuleMessage.Window.Seconds()),
				})
				if err == nil {
					conn.Enqueue(data)
				}
				return
			}
		}

		if err := router.HandleSendMessage(conn.ID, m); err != nil {
			sendRouterError(conn, err)
		}
	})

	// -----------------------------------------------------------------------
	// typing_start / typing_stop — typing indicators
	// -----------------------------------------------------------------------
	dispatcher.Register(protocol.TypeTypingStart, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.TypingStartMsg)
		if !ok {
			return
		}
		if err := router.HandleTypingStart(conn.ID, m); err != nil {
			sendRouterError(conn, err)
		}
	})

	dispatcher.Register(protocol.TypeTypingStop, func(conn *ws.Connection, msg interface{}) {
		m, ok := msg.(protocol.TypingStopMsg)
		if !ok {
			return
		}
		if err := router.HandleTypingStop(conn.ID, m); err != nil {
			sendRouterError(conn, err)
		}
	})

	// Graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, initiating graceful shutdown...", sig)
		if natsClient != nil {
			natsClient.Close()
		}
		if err := server.Shutdown(); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		os.Exit(0)
	}()

	if err := server.Start(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
