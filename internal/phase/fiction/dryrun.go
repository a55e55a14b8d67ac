package fiction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vampirenirmal/storyloom/internal/agent"
)

var (
	chapterOfRe = regexp.MustCompile(`(?i)chapter (?:number )?(\d+) (?:of|in a series of) (\d+)`)
	draftRe     = regexp.MustCompile(`(?s)---\n(.*?)\n---`)
)

// NewDryRunBackend returns a scripted backend that answers every stage with
// plausible canned text, so a whole run can be exercised offline.
func NewDryRunBackend() *agent.ScriptedBackend {
	b := agent.NewScriptedBackend()

	plan := `{
  "title": "The Lantern Keeper",
  "genre": "fantasy",
  "central_theme": "Light survives by being shared",
  "protagonist": {
    "name": "Mara Vell",
    "background": "Apprentice lamplighter in a drowned city",
    "primary_goal": "Relight the great lantern",
    "internal_conflict": "Fears she is only a copy of her mentor"
  },
  "antagonist": {
    "name": "The Tidewarden",
    "motivation": "Believes darkness keeps the city safe",
    "power_source": "Command of the flood tides"
  },
  "plot_threads": ["The missing lantern oil", "Mara's apprenticeship"],
  "tensions": ["The Tidewarden forbids any flame"]
}`
	b.On(StagePlotPlanner, plan)
	b.On(StagePlotModifier, plan)

	b.OnFunc(StageScenePlanner, func(req agent.Request) string {
		n, total := chapterOf(req)
		return fmt.Sprintf("Scene 1: Mara wakes in the flooded tower (chapter %d of %d).\n"+
			"Scene 2: She trades with the ferrymen for oil.\n"+
			"Scene 3: The Tidewarden's patrol closes in.\n"+
			"Scene 4: A choice at the lantern stair.", n, total)
	})
	b.OnFunc(StageSceneModifier, func(req agent.Request) string {
		return "Scene 1: A revised opening at the harbour.\nScene 2: The bargain.\nScene 3: The chase.\nScene 4: The stair."
	})
	b.OnFunc(StageChapterWriter, func(req agent.Request) string {
		n, total := chapterOf(req)
		body := strings.Repeat("Mara carried the cold lamp through the water, listening for the tide. ", 12)
		if n == total {
			body += "The lantern caught, and the city looked up."
		}
		return fmt.Sprintf("Chapter %d: The Tide at Hour %d\n\n%s", n, n, body)
	})
	b.OnFunc(StageChapterRefiner, func(req agent.Request) string {
		if m := draftRe.FindStringSubmatch(lastUser(req)); m != nil {
			return strings.TrimSpace(m[1])
		}
		return ""
	})
	b.OnFunc(StageSummarizer, func(req agent.Request) string {
		msg := lastUser(req)
		heading := "the opening chapter"
		if i := strings.Index(msg, "Chapter "); i >= 0 {
			line := msg[i:]
			if j := strings.IndexByte(line, '\n'); j >= 0 {
				line = line[:j]
			}
			heading = line
		}
		return "So far, through " + heading + ", Mara has pressed on toward the lantern while the Tidewarden tightens his grip."
	})
	b.OnFunc(StageNarrativeTracker, func(req agent.Request) string {
		return `{
  "character_developments": {
    "Mara Vell": {
      "arc_progression": "Trusts her own judgement a little more",
      "emotional_state": "Determined",
      "key_decision": "Keeps the oil rather than selling it"
    }
  },
  "plot_thread_status": {
    "The missing lantern oil": "partly recovered"
  },
  "new_tensions": ["The ferrymen want payment"],
  "thematic_progression": {
    "sharing light": "Mara lends her lamp to a stranger"
  }
}`
	})
	b.On(StageCoherenceChecker, "The arcs are consistent; the oil thread resolves cleanly.")
	return b
}

func chapterOf(req agent.Request) (int, int) {
	m := chapterOfRe.FindStringSubmatch(lastUser(req))
	if m == nil {
		return 1, 1
	}
	n, _ := strconv.Atoi(m[1])
	total, _ := strconv.Atoi(m[2])
	return n, total
}

func lastUser(req agent.Request) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == agent.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
