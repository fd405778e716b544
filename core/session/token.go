package session

import (
	"context"

	"github.com/golang-jwt/jwt/v5"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
)

// usernameFromToken 不验证签名地解出令牌负载中的用户名。
// 签名校验是服务端的职责，这里的结果只能当作"尽力而为的提示"，
// 绝不能据此在客户端做任何授权判断。
func usernameFromToken(raw string) (string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(raw, jwt.MapClaims{})
	if err != nil {
		return "", coreerrors.Wrap(coreerrors.ErrCodeDecode, "session: 令牌解析失败", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrTokenInvalid
	}
	username, _ := claims["username"].(string)
	if username == "" {
		return "", ErrTokenInvalid
	}
	return username, nil
}

// RestoreUserFromToken 从令牌恢复登录态：解出用户名、拉取资料后执行
// 完整登录。任何解析或请求失败都强制登出，不允许出现半登录状态。
func (s *Store) RestoreUserFromToken(ctx context.Context, raw string) error {
	username, err := usernameFromToken(raw)
	if err != nil {
		s.logger.Warnf("令牌恢复失败: %v", err)
		s.Logout()
		return err
	}
	profile, err := s.api.GetProfile(ctx, username)
	if err != nil {
		s.logger.Warnf("令牌恢复失败: %v", err)
		s.Logout()
		return err
	}
	s.Login(profile, raw)
	s.logger.Infof("从令牌恢复用户成功")
	return nil
}
