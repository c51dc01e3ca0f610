// Package database manages the optional PostgreSQL archive.
//
// Tables:
//   - tweets: one row per archived tweet, raw payload kept as JSONB
//   - tweet_deletions: delete notices, applied to tweets and kept so that
//     late-arriving tweets are never stored
//   - geo_scrubs: scrub_geo notices per user
package database
