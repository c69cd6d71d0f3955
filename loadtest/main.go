package main

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
)

const (
	WSURL     = "ws://localhost:8080/ws/conversations"
	PairCount = 200 // ⚠️ Start small. Each pair is one customer + one provider.
	MsgCount  = 20  // Messages per side
)

// The load tester mints its own tokens; point JWT_SECRET at the same secret
// the server uses. Providers 1..PairCount must exist (seed the providers
// table first).
func main() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("❌ JWT_SECRET is not set")
	}

	log.Printf("🔥 STARTING STRESS TEST: %d pairs, %d messages each side...", PairCount, MsgCount)
	var wg sync.WaitGroup

	for i := 1; i <= PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(secret, pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

// runPair drives one conversation: customer (id 10000+pair) talking to the
// owner of provider <pair> (id 20000+pair).
func runPair(secret string, pairID int) {
	providerID := pairID
	customerID := 10000 + pairID
	ownerID := 20000 + pairID

	customerToken := mintToken(secret, customerID, "customer", fmt.Sprintf("cust_%d", pairID))
	providerToken := mintToken(secret, ownerID, "provider", fmt.Sprintf("prov_%d", pairID))

	var wsWg sync.WaitGroup
	wsWg.Add(2)

	customerURL := fmt.Sprintf("%s/%d?token=%s", WSURL, providerID, customerToken)
	providerURL := fmt.Sprintf("%s/%d?token=%s&counterpart=%d", WSURL, providerID, providerToken, customerID)

	go spamChat(&wsWg, customerURL, fmt.Sprintf("cust_%d", pairID))
	go spamChat(&wsWg, providerURL, fmt.Sprintf("prov_%d", pairID))

	wsWg.Wait()
}

func mintToken(secret string, id int, role, name string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"id":   id,
		"role": role,
		"name": name,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	ss, err := token.SignedString([]byte(secret))
	if err != nil {
		log.Fatalf("❌ Token mint failed: %v", err)
	}
	return ss
}

func spamChat(wg *sync.WaitGroup, url, user string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		return
	}
	defer conn.Close()

	// Drain server pushes so the write buffer never backs up.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		msg := map[string]string{
			"type":    "send",
			"content": fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			break
		}
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", user, MsgCount)
}
