package redis

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const outboxQueueKey = "outbox:queue"

type repo struct {
	rc           *redis.Client
	logger       *slog.Logger
	roomTTL      time.Duration
	inboxTTL     time.Duration
	commitScript *redis.Script
}

// The commit script applies one unit of work atomically: all version
// checks first, then the inbox marker, then every write. Returns 1 on
// success, -1 on a version conflict, -2 on a duplicate inbox marker.
const commitScriptSrc = `
local u = tonumber(ARGV[1])
local d = tonumber(ARGV[2])
local m = tonumber(ARGV[3])
local o = tonumber(ARGV[4])
local inboxKey = ARGV[5]
local inboxTtl = ARGV[6]
local roomTtl = ARGV[7]
local argi = 8

for i = 1, u do
	local expected = tonumber(ARGV[argi + (i - 1) * 2])
	local current = tonumber(redis.call('HGET', KEYS[i], 'version') or '0')
	if current ~= expected then
		return -1
	end
end

if inboxKey ~= '' then
	if redis.call('SET', inboxKey, '1', 'NX', 'PX', inboxTtl) == false then
		return -2
	end
end

for i = 1, u do
	redis.call('HSET', KEYS[i], 'data', ARGV[argi + 1], 'version', tonumber(ARGV[argi]) + 1)
	redis.call('PEXPIRE', KEYS[i], roomTtl)
	argi = argi + 2
end

for i = 1, d do
	redis.call('DEL', KEYS[u + i])
end

for i = 1, m do
	redis.call('RPUSH', KEYS[u + d + i], ARGV[argi])
	redis.call('PEXPIRE', KEYS[u + d + i], roomTtl)
	argi = argi + 1
end

for i = 1, o do
	redis.call('RPUSH', KEYS[u + d + m + 1], ARGV[argi])
	argi = argi + 1
end

return 1
`

func NewRepo(rc *redis.Client, logger *slog.Logger, roomTTL time.Duration) *repo {
	return &repo{
		rc:           rc,
		logger:       logger,
		roomTTL:      roomTTL,
		inboxTTL:     24 * time.Hour,
		commitScript: redis.NewScript(commitScriptSrc),
	}
}

func (r repo) getRoomKey(roomId string) string {
	return "room:" + roomId
}

func (r repo) getMessagesKey(roomId string) string {
	return "room:" + roomId + ":messages"
}

func (r repo) getInboxKey(messageId string) string {
	return "inbox:" + messageId
}

func (r repo) getOutboxProcessingKey(instanceId string) string {
	return "outbox:processing:" + instanceId
}
