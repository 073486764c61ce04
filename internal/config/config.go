package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Server struct {
		Port string
		Host string
		TLS  struct {
			Enabled  bool
			CertFile string
			KeyFile  string
		}
		DeployDomain string
		Debug        bool
	}
	Auth struct {
		SessionSecret string
	}
	Database struct {
		DSN      string
		RedisURI string
	}
	OpenAI struct {
		APIKey       string
		ChatModel    string
		SystemPrompt string
	}
	Slack struct {
		BotToken string
		// Fixed recipient for leader notifications. A Slack user ID opens a
		// DM; a channel ID posts to the channel directly.
		LeaderID string
	}
	Telegram struct {
		BotToken string
		ChatID   string
	}
	Sentry struct {
		DSN string
	}
	// When enabled, summaries are also rendered to speech and attached to
	// the leader notification.
	VoiceDelivery bool
}

// DefaultSystemPrompt is the editorial template for the summarization
// collaborator. Lino thanks the sender, paraphrases without repeating the
// transcript verbatim, surfaces sentiment and asks for confirmation.
const DefaultSystemPrompt = "You are Lino, an AI assistant and close colleague who understands how " +
	"the team member feels. Your task is to summarize their feedback in a " +
	"friendly, professional way and confirm it can be sent to their leader.\n\n" +
	"Follow exactly this structure:\n" +
	"1. Thank them warmly for sharing\n" +
	"2. Summarize the message clearly and respectfully, in your own words\n" +
	"3. Highlight the main points and the feelings expressed\n" +
	"4. Ask whether the summary reflects their intent\n" +
	"5. Offer to adjust anything\n" +
	"6. Confirm whether it can be sent to the leader\n\n" +
	"Keep the tone of a natural conversation between close colleagues."

func Load() (*Config, error) {

	envStack := os.Getenv("ENV_STACK")

	if envStack != "" {
		filePath := "./env-files/.env." + envStack
		if err := godotenv.Load(filePath); err != nil {
			fmt.Printf("Error loading .env file: %s\n", err)
		}
	}

	c := &Config{}

	c.Server.Port = os.Getenv("SERVER_PORT")
	if c.Server.Port == "" {
		c.Server.Port = "1926"
	}

	c.Server.Host = os.Getenv("SERVER_HOST")
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}

	c.Server.DeployDomain = os.Getenv("DEPLOY_DOMAIN")
	if c.Server.DeployDomain == "" {
		c.Server.DeployDomain = c.Server.Host + ":" + c.Server.Port
	}

	c.Server.Debug = os.Getenv("ENABLE_DEBUG_ENDPOINTS") == "true"

	useTLS := os.Getenv("USE_TLS")
	c.Server.TLS.Enabled = useTLS != "false" && useTLS != "0" && useTLS != ""
	c.Server.TLS.CertFile = "./certs/localhost.pem"
	c.Server.TLS.KeyFile = "./certs/localhost-key.pem"

	c.Auth.SessionSecret = os.Getenv("SESSION_SECRET")

	c.Database.DSN = os.Getenv("DATABASE_DSN")
	c.Database.RedisURI = os.Getenv("REDIS_URI")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.ChatModel = os.Getenv("OPENAI_CHAT_MODEL")
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	c.OpenAI.SystemPrompt = os.Getenv("SUMMARY_SYSTEM_PROMPT")
	if c.OpenAI.SystemPrompt == "" {
		c.OpenAI.SystemPrompt = DefaultSystemPrompt
	}

	c.Slack.BotToken = os.Getenv("SLACK_BOT_TOKEN")
	c.Slack.LeaderID = os.Getenv("SLACK_LEADER_ID")

	c.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.ChatID = os.Getenv("TELEGRAM_CHAT_ID")

	c.Sentry.DSN = os.Getenv("SENTRY_DSN")

	c.VoiceDelivery = os.Getenv("ENABLE_VOICE_DELIVERY") == "true"

	return c, nil
}
