package event

import "time"

// -----------------------------------------------------------------------------
// Tweets
// -----------------------------------------------------------------------------

// CreatedAtLayout is the timestamp format used by created_at fields.
const CreatedAtLayout = time.RubyDate

// Tweet is the subset of a status object the pipeline reads.
type Tweet struct {
	ID              int64    `json:"id"`
	IDStr           string   `json:"id_str"`
	Text            string   `json:"text"`
	CreatedAt       string   `json:"created_at"`
	User            User     `json:"user"`
	Entities        Entities `json:"entities"`
	RetweetedStatus *Tweet   `json:"retweeted_status,omitempty"`
}

// User is the author of a Tweet.
type User struct {
	ID              int64  `json:"id"`
	IDStr           string `json:"id_str"`
	ScreenName      string `json:"screen_name"`
	Name            string `json:"name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Entities holds parsed tweet entities.
type Entities struct {
	Media []Media `json:"media,omitempty"`
}

// Media is an attached photo or video.
type Media struct {
	ID       int64  `json:"id"`
	Type     string `json:"type"`
	MediaURL string `json:"media_url_https"`
}

// CreatedTime parses CreatedAt.
func (t Tweet) CreatedTime() (time.Time, error) {
	return time.Parse(CreatedAtLayout, t.CreatedAt)
}

// Original returns the retweeted status for retweets, otherwise t itself.
func (t *Tweet) Original() *Tweet {
	if t.RetweetedStatus != nil {
		return t.RetweetedStatus
	}
	return t
}

// -----------------------------------------------------------------------------
// Control notices
// -----------------------------------------------------------------------------

// LimitNotice reports how many matching tweets were withheld by rate limiting
// since the connection opened.
type LimitNotice struct {
	Track int64 `json:"track"`
}

// DeleteNotice asks consumers to remove a stored status.
type DeleteNotice struct {
	Status struct {
		ID        int64  `json:"id"`
		IDStr     string `json:"id_str"`
		UserID    int64  `json:"user_id"`
		UserIDStr string `json:"user_id_str"`
	} `json:"status"`
}

// ScrubGeoNotice asks consumers to strip location data from a user's
// statuses up to and including UpToStatusID.
type ScrubGeoNotice struct {
	UserID          int64  `json:"user_id"`
	UserIDStr       string `json:"user_id_str"`
	UpToStatusID    int64  `json:"up_to_status_id"`
	UpToStatusIDStr string `json:"up_to_status_id_str"`
}
