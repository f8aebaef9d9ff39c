// Package redis connects to Redis through go-redis with retry and exposes a
// health check. The client it returns backs ratelimit.RedisStore.
//
// # Usage
//
//	var cfg redis.Config
//	if err := env.Parse(&cfg); err != nil {
//		return err
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//
//	store := ratelimit.NewRedisStore(client)
//
// # Errors
//
// Sentinels such as ErrRedisNotReady are joined with the underlying go-redis
// error, so both can be matched with errors.Is.
package redis
