package relay

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sort"
	"strconv"
)

// Action describes one upstream write and the messages reported for it.
type Action struct {
	Name  string // route suffix, e.g. "follow"
	Param string // request field carrying the target id

	Completed string // batch message
	Succeeded string
	Already   string
	Failed    string // prefix for errors without an upstream message
	Missing   string // reported when the target precheck fails

	// done reports whether the account already satisfies the action.
	done func(ctx context.Context, s *session, target int64) (bool, error)
	// exists returns the URL whose 2xx JSON answer proves the target exists.
	exists func(s *session, target int64) string
	primer func(s *session) request
	act    func(s *session, target int64) request
}

var actions = map[string]Action{}

func register(a Action) Action {
	actions[a.Name] = a
	return a
}

// Lookup returns the action served at /roblox/{name}.
func Lookup(name string) (Action, bool) {
	a, ok := actions[name]
	return a, ok
}

// Names lists the registered actions in a stable order.
func Names() []string {
	out := make([]string, 0, len(actions))
	for n := range actions {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// ParseTarget accepts positive base-10 integers only.
func ParseTarget(s string) (int64, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func robloxPost(u string) request {
	return request{
		method:      http.MethodPost,
		url:         u,
		contentType: "application/json",
		referer:     "https://www.roblox.com/",
		origin:      "https://www.roblox.com",
		bound:       true,
	}
}

// The csrf endpoint answers 403 with the token in a header.
func csrfEndpointPrimer(s *session) request { return robloxPost(s.ep.Web + "/api/csrf") }

// The home page embeds the token in a script call.
func homePagePrimer(s *session) request {
	r := s.get(s.ep.Web + "/home")
	r.origin = ""
	return r
}

type idEntry struct {
	ID int64 `json:"id"`
}

type idList struct {
	Data []idEntry `json:"data"`
}

func (l idList) has(id int64) bool {
	return slices.ContainsFunc(l.Data, func(e idEntry) bool { return e.ID == id })
}

var (
	Follow = register(Action{
		Name:      "follow",
		Param:     "user_id",
		Completed: "Follow action completed",
		Succeeded: "Successfully followed user",
		Already:   "Already following this user",
		Failed:    "Failed to follow user",
		done: func(ctx context.Context, s *session, target int64) (bool, error) {
			me, err := s.whoami(ctx)
			if err != nil {
				return false, err
			}
			var list idList
			if err := s.getJSON(ctx, fmt.Sprintf("%s/v1/users/%d/followings?limit=100", s.ep.Friends, me), &list); err != nil {
				return false, err
			}
			return list.has(target), nil
		},
		primer: csrfEndpointPrimer,
		act: func(s *session, target int64) request {
			return robloxPost(fmt.Sprintf("%s/v1/users/%d/follow", s.ep.Friends, target))
		},
	})

	Favorite = register(Action{
		Name:      "favorite",
		Param:     "place_id",
		Completed: "Favorite action completed",
		Succeeded: "Successfully favorited place",
		Already:   "Already favorited this place",
		Failed:    "Failed to favorite place",
		Missing:   "Place not found or invalid place ID",
		done: func(ctx context.Context, s *session, target int64) (bool, error) {
			me, err := s.whoami(ctx)
			if err != nil {
				return false, err
			}
			var favs struct {
				Data []struct {
					PlaceID int64 `json:"placeId"`
				} `json:"data"`
			}
			if err := s.getJSON(ctx, fmt.Sprintf("%s/v1/users/%d/favorites_games", s.ep.Games, me), &favs); err != nil {
				return false, err
			}
			for _, f := range favs.Data {
				if f.PlaceID == target {
					return true, nil
				}
			}
			return false, nil
		},
		exists: func(s *session, target int64) string {
			return fmt.Sprintf("%s/v1/games/%d", s.ep.Games, target)
		},
		primer: csrfEndpointPrimer,
		act: func(s *session, target int64) request {
			return robloxPost(fmt.Sprintf("%s/v1/games/%d/favorite", s.ep.Games, target))
		},
	})

	JoinGroup = register(Action{
		Name:      "join_group",
		Param:     "group_id",
		Completed: "Join group action completed",
		Succeeded: "Successfully joined group",
		Already:   "Already in this group",
		Failed:    "Failed to join group",
		Missing:   "Group not found or invalid group ID",
		done: func(ctx context.Context, s *session, target int64) (bool, error) {
			me, err := s.whoami(ctx)
			if err != nil {
				return false, err
			}
			var roles struct {
				Data []struct {
					Group struct {
						ID int64 `json:"id"`
					} `json:"group"`
				} `json:"data"`
			}
			if err := s.getJSON(ctx, fmt.Sprintf("%s/v1/users/%d/groups/roles", s.ep.Groups, me), &roles); err != nil {
				return false, err
			}
			for _, r := range roles.Data {
				if r.Group.ID == target {
					return true, nil
				}
			}
			return false, nil
		},
		exists: func(s *session, target int64) string {
			return fmt.Sprintf("%s/v1/groups/%d", s.ep.Groups, target)
		},
		primer: homePagePrimer,
		act: func(s *session, target int64) request {
			return robloxPost(fmt.Sprintf("%s/v1/groups/%d/join", s.ep.Groups, target))
		},
	})

	FriendRequest = register(Action{
		Name:      "friend_request",
		Param:     "user_id",
		Completed: "Friend request action completed",
		Succeeded: "Successfully sent friend request",
		Already:   "Already friends with this user",
		Failed:    "Failed to send friend request",
		Missing:   "User not found or invalid user ID",
		done: func(ctx context.Context, s *session, target int64) (bool, error) {
			me, err := s.whoami(ctx)
			if err != nil {
				return false, err
			}
			var list idList
			if err := s.getJSON(ctx, fmt.Sprintf("%s/v1/users/%d/friends", s.ep.Friends, me), &list); err != nil {
				return false, err
			}
			return list.has(target), nil
		},
		exists: func(s *session, target int64) string {
			return fmt.Sprintf("%s/v1/users/%d", s.ep.Users, target)
		},
		primer: homePagePrimer,
		act: func(s *session, target int64) request {
			return robloxPost(fmt.Sprintf("%s/v1/users/%d/request-friendship", s.ep.Friends, target))
		},
	})

	DevForumLike = register(Action{
		Name:      "devforum_like",
		Param:     "post_id",
		Completed: "Devforum like action completed",
		Succeeded: "Successfully liked Devforum post",
		Already:   "Already liked this post",
		Failed:    "Failed to like post",
		done: func(ctx context.Context, s *session, target int64) (bool, error) {
			me, err := s.whoami(ctx)
			if err != nil {
				return false, err
			}
			var likes struct {
				Post struct {
					LikeIDs []int64 `json:"like_ids"`
				} `json:"post"`
			}
			if err := s.getJSON(ctx, fmt.Sprintf("%s/posts/%d/likes.json", s.ep.DevForum, target), &likes); err != nil {
				return false, err
			}
			return slices.Contains(likes.Post.LikeIDs, me), nil
		},
		primer: func(s *session) request {
			return request{method: http.MethodGet, url: s.ep.DevForum + "/session/csrf"}
		},
		act: func(s *session, target int64) request {
			return request{
				method:      http.MethodPost,
				url:         fmt.Sprintf("%s/posts/%d/likes.json", s.ep.DevForum, target),
				contentType: "application/x-www-form-urlencoded",
				referer:     fmt.Sprintf("%s/t/%d", s.ep.DevForum, target),
			}
		},
	})

	RoProLike = register(Action{
		Name:      "ropro_like",
		Param:     "post_id",
		Completed: "RoPro like action completed",
		Succeeded: "Successfully liked RoPro post",
		Already:   "Already liked this post",
		Failed:    "Failed to like post",
		done: func(ctx context.Context, s *session, target int64) (bool, error) {
			me, err := s.whoami(ctx)
			if err != nil {
				return false, err
			}
			var likes struct {
				Likes []int64 `json:"likes"`
			}
			if err := s.getJSON(ctx, fmt.Sprintf("%s/v1/posts/%d/likes", s.ep.RoPro, target), &likes); err != nil {
				return false, err
			}
			return slices.Contains(likes.Likes, me), nil
		},
		primer: func(s *session) request {
			return request{method: http.MethodPost, url: s.ep.RoPro + "/csrf", referer: "https://ropro.io/"}
		},
		act: func(s *session, target int64) request {
			return request{
				method:      http.MethodPost,
				url:         fmt.Sprintf("%s/v1/posts/%d/like", s.ep.RoPro, target),
				contentType: "application/json",
				referer:     "https://ropro.io/",
			}
		},
	})
)
