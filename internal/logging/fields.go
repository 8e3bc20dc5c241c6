package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供请求分类、资源键与命中状态字段，供代理请求日志复用。
func RequestFields(class, assetKey, source string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"class":     class,
		"asset_key": assetKey,
		"source":    source,
		"cache_hit": cacheHit,
	}
}

// StoreFields 描述一次存储层操作涉及的存储名称。
func StoreFields(action, store string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"store":  store,
	}
}

// JobFields 描述预加载任务的关联字段。
func JobFields(jobID string, requested int) logrus.Fields {
	return logrus.Fields{
		"action":    "preload",
		"job_id":    jobID,
		"requested": requested,
	}
}
