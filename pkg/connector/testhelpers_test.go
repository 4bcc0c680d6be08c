// Copyright 2024-2026 Aiku AI

package connector

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/aiku/mx-puppet-steam/pkg/puppet"
	"github.com/aiku/mx-puppet-steam/pkg/steamapi"
)

var (
	_ steamapi.Client    = (*fakeSteamClient)(nil)
	_ steamapi.ChatAPI   = (*fakeChatAPI)(nil)
	_ steamapi.WebClient = (*fakeWebClient)(nil)
	_ puppet.Bridge      = (*fakeBridge)(nil)
)

// selfSteamID is a structurally valid individual account id used as the
// session's own identity in tests.
const selfSteamID = steamapi.SteamID(76561197960287930)

// friendSteamID is a second valid individual account id.
const friendSteamID = steamapi.SteamID(76561197960287931)

type sentFriendMessage struct {
	friend  steamapi.SteamID
	message string
}

type sentChatMessage struct {
	groupID, chatID, message string
}

type ackRecord struct {
	friend          steamapi.SteamID
	groupID, chatID string
	upTo            time.Time
}

type fakeChatAPI struct {
	mu             sync.Mutex
	friendMessages []sentFriendMessage
	chatMessages   []sentChatMessage
	typingTo       []steamapi.SteamID
	friendAcks     []ackRecord
	chatAcks       []ackRecord

	sendResult *steamapi.SentMessage
	sendErr    error
	groups     []*steamapi.GroupInfo
}

func (f *fakeChatAPI) SendFriendMessage(_ context.Context, friend steamapi.SteamID, message string) (*steamapi.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.friendMessages = append(f.friendMessages, sentFriendMessage{friend: friend, message: message})
	return f.sendResult, nil
}

func (f *fakeChatAPI) SendChatMessage(_ context.Context, groupID, chatID, message string) (*steamapi.SentMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.chatMessages = append(f.chatMessages, sentChatMessage{groupID: groupID, chatID: chatID, message: message})
	return f.sendResult, nil
}

func (f *fakeChatAPI) SendFriendTyping(_ context.Context, friend steamapi.SteamID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typingTo = append(f.typingTo, friend)
	return nil
}

func (f *fakeChatAPI) AckFriendMessage(_ context.Context, friend steamapi.SteamID, upTo time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.friendAcks = append(f.friendAcks, ackRecord{friend: friend, upTo: upTo})
	return nil
}

func (f *fakeChatAPI) AckChatMessage(_ context.Context, groupID, chatID string, upTo time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatAcks = append(f.chatAcks, ackRecord{groupID: groupID, chatID: chatID, upTo: upTo})
	return nil
}

func (f *fakeChatAPI) GetGroups(_ context.Context) ([]*steamapi.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groups, nil
}

type fakeSteamClient struct {
	mu           sync.Mutex
	loggedOn     chan steamapi.Credentials
	logOnErr     error
	logOffCalls  int
	personaSets  []steamapi.PersonaState
	webLogOns    int
	personaCalls int
	productCalls int

	steamID  steamapi.SteamID
	personas map[steamapi.SteamID]*steamapi.Persona
	products map[uint32]*steamapi.ProductInfo
	events   chan steamapi.Event
	chat     *fakeChatAPI

	personaGate chan struct{}

	// onLogOn and onLogOff record into a shared operation log when set.
	onLogOn  func()
	onLogOff func()
}

func newFakeSteamClient() *fakeSteamClient {
	return &fakeSteamClient{
		loggedOn: make(chan steamapi.Credentials, 8),
		steamID:  selfSteamID,
		personas: make(map[steamapi.SteamID]*steamapi.Persona),
		products: make(map[uint32]*steamapi.ProductInfo),
		events:   make(chan steamapi.Event, 16),
		chat: &fakeChatAPI{
			sendResult: &steamapi.SentMessage{
				ServerTimestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				Ordinal:         0,
			},
		},
	}
}

func (f *fakeSteamClient) LogOn(_ context.Context, creds steamapi.Credentials) error {
	f.mu.Lock()
	onLogOn := f.onLogOn
	err := f.logOnErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if onLogOn != nil {
		onLogOn()
	}
	f.loggedOn <- creds
	return nil
}

func (f *fakeSteamClient) LogOff() {
	f.mu.Lock()
	f.logOffCalls++
	onLogOff := f.onLogOff
	f.mu.Unlock()
	if onLogOff != nil {
		onLogOff()
	}
}

func (f *fakeSteamClient) Events() <-chan steamapi.Event {
	return f.events
}

func (f *fakeSteamClient) SteamID() steamapi.SteamID {
	return f.steamID
}

func (f *fakeSteamClient) GetPersonas(_ context.Context, ids []steamapi.SteamID) (map[steamapi.SteamID]*steamapi.Persona, error) {
	if f.personaGate != nil {
		<-f.personaGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.personaCalls++
	out := make(map[steamapi.SteamID]*steamapi.Persona, len(ids))
	for _, id := range ids {
		p, ok := f.personas[id]
		if !ok {
			return nil, fmt.Errorf("no persona for %s", id)
		}
		out[id] = p
	}
	return out, nil
}

func (f *fakeSteamClient) GetProductInfo(_ context.Context, appIDs []uint32) (map[uint32]*steamapi.ProductInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.productCalls++
	out := make(map[uint32]*steamapi.ProductInfo, len(appIDs))
	for _, appID := range appIDs {
		p, ok := f.products[appID]
		if !ok {
			return nil, fmt.Errorf("no product for %d", appID)
		}
		out[appID] = p
	}
	return out, nil
}

func (f *fakeSteamClient) SetPersona(_ context.Context, state steamapi.PersonaState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.personaSets = append(f.personaSets, state)
	return nil
}

func (f *fakeSteamClient) WebLogOn(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webLogOns++
	return nil
}

func (f *fakeSteamClient) Chat() steamapi.ChatAPI {
	return f.chat
}

type fakeWebClient struct {
	mu      sync.Mutex
	cookies []string
	images  [][]byte
	echoURL string
	sendErr error
}

func (f *fakeWebClient) SetCookies(cookies []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = cookies
}

func (f *fakeWebClient) SendImageToUser(_ context.Context, _ steamapi.SteamID, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.images = append(f.images, data)
	return f.echoURL, nil
}

type sentMessageRecord struct {
	params *puppet.ReceiveParams
	msg    *puppet.MessageEvent
}

type sentImageRecord struct {
	params *puppet.ReceiveParams
	file   *puppet.FileEvent
}

type presenceRecord struct {
	user     puppet.RemoteUser
	presence event.Presence
}

type statusRecord struct {
	user   puppet.RemoteUser
	status string
}

type eventSyncRecord struct {
	room          puppet.RemoteRoom
	matrixEventID string
	remoteEventID string
}

type fakeEventSync struct {
	mu      sync.Mutex
	records []eventSyncRecord
}

func (f *fakeEventSync) Insert(_ context.Context, room puppet.RemoteRoom, matrixEventID, remoteEventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, eventSyncRecord{room: room, matrixEventID: matrixEventID, remoteEventID: remoteEventID})
	return nil
}

type fakeEmoteSync struct {
	mu     sync.Mutex
	emotes map[string]id.ContentURIString
}

func (f *fakeEmoteSync) Get(_ context.Context, emoteID string) (id.ContentURIString, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	uri, ok := f.emotes[emoteID]
	return uri, ok, nil
}

func (f *fakeEmoteSync) Set(_ context.Context, emoteID string, uri id.ContentURIString) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.emotes == nil {
		f.emotes = make(map[string]id.ContentURIString)
	}
	f.emotes[emoteID] = uri
	return nil
}

type fakeBridge struct {
	mu         sync.Mutex
	userIDs    map[int64]string
	statuses   []string
	data       []*puppet.Data
	presences  []presenceRecord
	userStatus []statusRecord
	messages   []sentMessageRecord
	images     []sentImageRecord
	typing     []*puppet.ReceiveParams
	uploads    [][]byte

	eventSync *fakeEventSync
	emoteSync *fakeEmoteSync
}

func newFakeBridge() *fakeBridge {
	return &fakeBridge{
		userIDs:   make(map[int64]string),
		eventSync: &fakeEventSync{},
		emoteSync: &fakeEmoteSync{},
	}
}

func (f *fakeBridge) SetUserID(_ context.Context, puppetID int64, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userIDs[puppetID] = userID
	return nil
}

func (f *fakeBridge) SendStatusMessage(_ context.Context, _ int64, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, msg)
	return nil
}

func (f *fakeBridge) SetPuppetData(_ context.Context, _ int64, data *puppet.Data) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = append(f.data, data)
	return nil
}

func (f *fakeBridge) SetUserPresence(_ context.Context, user puppet.RemoteUser, presence event.Presence) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.presences = append(f.presences, presenceRecord{user: user, presence: presence})
	return nil
}

func (f *fakeBridge) SetUserStatus(_ context.Context, user puppet.RemoteUser, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userStatus = append(f.userStatus, statusRecord{user: user, status: status})
	return nil
}

func (f *fakeBridge) SendMessage(_ context.Context, params *puppet.ReceiveParams, msg *puppet.MessageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, sentMessageRecord{params: params, msg: msg})
	return nil
}

func (f *fakeBridge) SendImage(_ context.Context, params *puppet.ReceiveParams, file *puppet.FileEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, sentImageRecord{params: params, file: file})
	return nil
}

func (f *fakeBridge) SetUserTyping(_ context.Context, params *puppet.ReceiveParams, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typing = append(f.typing, params)
	return nil
}

func (f *fakeBridge) UploadContent(_ context.Context, data []byte, _ string) (id.ContentURIString, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads = append(f.uploads, data)
	return id.ContentURIString(fmt.Sprintf("mxc://test/upload%d", len(f.uploads))), nil
}

func (f *fakeBridge) EventSync() puppet.EventSync { return f.eventSync }
func (f *fakeBridge) EmoteSync() puppet.EmoteSync { return f.emoteSync }

// testEnv bundles a connector wired entirely to fakes. The factories hand
// out the same fake client pair to every session unless replaced.
type testEnv struct {
	connector *Connector
	bridge    *fakeBridge
	steam     *fakeSteamClient
	web       *fakeWebClient
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithConfig(t, Config{BridgePresence: true})
}

func newTestEnvWithConfig(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	bridge := newFakeBridge()
	steam := newFakeSteamClient()
	web := &fakeWebClient{echoURL: "https://images.steamusercontent.com/abc123/"}
	sc, err := NewConnector(
		bridge,
		cfg,
		func() steamapi.Client { return steam },
		func() steamapi.WebClient { return web },
		zerolog.Nop(),
	)
	if err != nil {
		t.Fatalf("NewConnector: %v", err)
	}
	return &testEnv{connector: sc, bridge: bridge, steam: steam, web: web}
}

// newTestClient builds an unstarted session around the env's fakes so
// handlers can be driven synchronously.
func (env *testEnv) newTestClient(puppetID int64) *Client {
	return newClient(env.connector, puppetID, &puppet.Data{AccountName: "tester"})
}
